package directory

import (
	"context"
	"testing"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn              func(ctx context.Context, id string) (*model.User, error)
	findByUsernameOrEmailFn func(ctx context.Context, username, email string) (*model.User, error)
	findByHostFn            func(ctx context.Context, hostName string) ([]*model.User, error)
	findByHostAndEmailFn    func(ctx context.Context, hostName, email string) (*model.User, error)
	createFn                func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	return m.findByUsernameOrEmailFn(ctx, username, email)
}
func (m *mockUserRepo) FindByHost(ctx context.Context, hostName string) ([]*model.User, error) {
	return m.findByHostFn(ctx, hostName)
}
func (m *mockUserRepo) FindByHostAndEmail(ctx context.Context, hostName, email string) (*model.User, error) {
	return m.findByHostAndEmailFn(ctx, hostName, email)
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return m.createFn(ctx, user)
}

func newTestCache() *session.Cache {
	return session.NewCache(&model.Session{ID: "test-session", Data: map[string]any{}})
}

// --- テスト ---

// TestService_FindOrCreateUser_ExistingUserReturnedUnmodified は既存ユーザーが
// 見つかった場合、引数の属性で上書きされないことを検証する。
func TestService_FindOrCreateUser_ExistingUserReturnedUnmodified(t *testing.T) {
	existing := &model.User{ID: "user-1", Username: "alice", Email: "alice@example.com", Groups: []string{"admin"}}
	created := false
	repo := &mockUserRepo{
		findByUsernameOrEmailFn: func(ctx context.Context, username, email string) (*model.User, error) {
			if username != "alice" {
				t.Errorf("username = %q, want %q", username, "alice")
			}
			return existing, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			created = true
			return nil
		},
	}
	svc := NewService(repo)

	u, err := svc.FindOrCreateUser(context.Background(), &model.User{
		Username: "alice",
		Email:    "other@example.com",
		Groups:   []string{"superuser"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created {
		t.Error("Create should not be called when the user exists")
	}
	if u.ID != "user-1" || u.Groups[0] != "admin" {
		t.Errorf("existing user was modified: %+v", u)
	}
}

// TestService_FindOrCreateUser_CreatesWithGuestDefault は新規作成時に
// グループ未指定なら guest が割り当てられることを検証する。
func TestService_FindOrCreateUser_CreatesWithGuestDefault(t *testing.T) {
	var createdUser *model.User
	repo := &mockUserRepo{
		findByUsernameOrEmailFn: func(ctx context.Context, username, email string) (*model.User, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	svc := NewService(repo)

	u, err := svc.FindOrCreateUser(context.Background(), &model.User{Email: "Bob@Example.COM"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if createdUser == nil {
		t.Fatal("Create was not called")
	}
	if u.Email != "bob@example.com" {
		t.Errorf("Email = %q, want normalized %q", u.Email, "bob@example.com")
	}
	if len(u.Groups) != 1 || u.Groups[0] != model.DefaultGroup {
		t.Errorf("Groups = %v, want [%s]", u.Groups, model.DefaultGroup)
	}
	if u.ID == "" {
		t.Error("expected generated ID for new user")
	}
}

// TestService_FindOrCreateUser_NoIdentifiers_ReturnsInvalidRequest は
// usernameとemailが両方空の場合にINVALID_REQUESTになることを検証する。
func TestService_FindOrCreateUser_NoIdentifiers_ReturnsInvalidRequest(t *testing.T) {
	svc := NewService(&mockUserRepo{})

	_, err := svc.FindOrCreateUser(context.Background(), &model.User{Username: "  ", Email: ""})
	if err == nil {
		t.Fatal("expected error for missing identifiers, got nil")
	}
	if !model.HasErrorCode(err, model.ErrCodeInvalidRequest) {
		t.Errorf("error code mismatch: got %v, want %s", err, model.ErrCodeInvalidRequest)
	}
}

// TestService_FindOrCreateUser_ShortUsername_ReturnsValidationError
func TestService_FindOrCreateUser_ShortUsername_ReturnsValidationError(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameOrEmailFn: func(ctx context.Context, username, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.FindOrCreateUser(context.Background(), &model.User{Username: "ab"})
	if err == nil {
		t.Fatal("expected error for short username, got nil")
	}
	if !model.HasErrorCode(err, model.ErrCodeValidationError) {
		t.Errorf("error code mismatch: got %v, want %s", err, model.ErrCodeValidationError)
	}
}

// TestService_GetUser_CacheMissReadsDBAndPopulates
func TestService_GetUser_CacheMissReadsDBAndPopulates(t *testing.T) {
	calls := 0
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			calls++
			return &model.User{ID: id, Email: "alice@example.com"}, nil
		},
	}
	svc := NewService(repo)
	cache := newTestCache()

	u, err := svc.GetUser(context.Background(), cache, "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if u.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", u.ID, "user-1")
	}

	// 2回目はキャッシュヒット
	if _, err := svc.GetUser(context.Background(), cache, "user-1"); err != nil {
		t.Fatalf("expected no error on cached read, got %v", err)
	}
	if calls != 1 {
		t.Errorf("repo calls = %d, want 1 (second read should hit cache)", calls)
	}
}

// TestService_GetUser_NotFound
func TestService_GetUser_NotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.GetUser(context.Background(), nil, "missing")
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}
	if !model.HasErrorCode(err, model.ErrCodeNotFound) {
		t.Errorf("error code mismatch: got %v, want %s", err, model.ErrCodeNotFound)
	}
}

// TestService_ClearUserCache
func TestService_ClearUserCache(t *testing.T) {
	svc := NewService(&mockUserRepo{})
	cache := newTestCache()
	cache.PopulateUser(&model.User{ID: "user-1"})

	svc.ClearUserCache(cache)

	if _, ok := cache.ReadUser(); ok {
		t.Error("expected user cache to be invalidated")
	}
}

// TestService_GetUserByEmail_NotFound
func TestService_GetUserByEmail_NotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByHostAndEmailFn: func(ctx context.Context, hostName, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.GetUserByEmail(context.Background(), "app.example.com", "missing@example.com")
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}
	if !model.HasErrorCode(err, model.ErrCodeNotFound) {
		t.Errorf("error code mismatch: got %v, want %s", err, model.ErrCodeNotFound)
	}
}

// TestService_GetUsers_NormalizesHost
func TestService_GetUsers_NormalizesHost(t *testing.T) {
	var capturedHost string
	repo := &mockUserRepo{
		findByHostFn: func(ctx context.Context, hostName string) ([]*model.User, error) {
			capturedHost = hostName
			return []*model.User{{ID: "user-1"}}, nil
		},
	}
	svc := NewService(repo)

	users, err := svc.GetUsers(context.Background(), "APP.Example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if capturedHost != "app.example.com" {
		t.Errorf("hostName = %q, want %q", capturedHost, "app.example.com")
	}
	if len(users) != 1 {
		t.Errorf("users = %+v, want 1 entry", users)
	}
}
