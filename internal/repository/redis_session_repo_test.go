package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/ssokit/internal/model"
)

func newTestRedisRepo(t *testing.T) (*RedisSessionRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisSessionRepo(client), mr
}

// セッションの作成と取得でデータバッグが維持されることを検証
func TestRedisSessionRepo_CreateAndFind(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	sess := &model.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Data:      map[string]any{"lastUri": "/dashboard"},
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := repo.FindByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found == nil {
		t.Fatal("expected session, got nil")
	}
	if found.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", found.UserID)
	}
	if found.Data["lastUri"] != "/dashboard" {
		t.Errorf("lastUri = %v, want /dashboard", found.Data["lastUri"])
	}
}

// 存在しないセッションはエラーではなくnilになることを検証
func TestRedisSessionRepo_FindMissing(t *testing.T) {
	repo, _ := newTestRedisRepo(t)

	found, err := repo.FindByID(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Errorf("expected nil, got %+v", found)
	}
}

// TTL経過後のセッションは取得できないことを検証
func TestRedisSessionRepo_Expiry(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	sess := &model.Session{
		ID:        "sess-exp",
		Data:      map[string]any{},
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	found, err := repo.FindByID(ctx, "sess-exp")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Error("expected expired session to read as nil")
	}
}

// Saveでデータバッグが上書きされることを検証
func TestRedisSessionRepo_SaveOverwrites(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	sess := &model.Session{
		ID:        "sess-2",
		Data:      map[string]any{"lastUri": "/a"},
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess.UserID = "user-2"
	sess.Data["lastUri"] = "/b"
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, err := repo.FindByID(ctx, "sess-2")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.UserID != "user-2" || found.Data["lastUri"] != "/b" {
		t.Errorf("unexpected session after save: %+v", found)
	}
}

// ユーザー単位の全セッション削除を検証
func TestRedisSessionRepo_DeleteByUserID(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		sess := &model.Session{
			ID:        id,
			UserID:    "user-3",
			Data:      map[string]any{},
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}
		if err := repo.Create(ctx, sess); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	if err := repo.DeleteByUserID(ctx, "user-3"); err != nil {
		t.Fatalf("DeleteByUserID() error = %v", err)
	}

	for _, id := range []string{"s1", "s2"} {
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID(%s) error = %v", id, err)
		}
		if found != nil {
			t.Errorf("expected session %s to be deleted", id)
		}
	}
}
