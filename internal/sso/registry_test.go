package sso

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/ssokit/internal/model"
)

// mockGuard はSSRFGuardServiceのモック。
type mockGuard struct {
	validateURLFunc func(rawURL string) error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return http.DefaultClient
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateURLFunc != nil {
		return m.validateURLFunc(rawURL)
	}
	return nil
}

// mockStrategy はStrategyのモック。
type mockStrategy struct {
	name         string
	loginURLFunc func(state string) string
	callbackFunc func(ctx context.Context, query url.Values) (*Profile, error)
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) LoginURL(state string) string {
	if m.loginURLFunc != nil {
		return m.loginURLFunc(state)
	}
	return "https://idp.example.com/authorize?state=" + state
}

func (m *mockStrategy) Callback(ctx context.Context, query url.Values) (*Profile, error) {
	if m.callbackFunc != nil {
		return m.callbackFunc(ctx, query)
	}
	return &Profile{Identifier: "mock-id"}, nil
}

func testRegistryProviders() []*model.Provider {
	return []*model.Provider{
		{
			Provider:     "google",
			Protocol:     model.ProtocolOAuth2,
			URL:          "https://accounts.google.com/o/oauth2/auth",
			URLValidate:  "https://oauth2.googleapis.com/token",
			URLProfile:   "https://www.googleapis.com/oauth2/v3/userinfo",
			URLCallback:  "https://sso.example.com/auth/google-oauth2/callback",
			StrategyName: "google-oauth2",
		},
		{
			Provider:     "corp",
			Protocol:     model.ProtocolCAS,
			URL:          "https://cas.example.com/login",
			URLValidate:  "https://cas.example.com/serviceValidate",
			URLCallback:  "https://sso.example.com/auth/corp-cas/callback",
			StrategyName: "corp-cas",
		},
		{
			Provider:     "local",
			Protocol:     model.ProtocolLocal,
			StrategyName: "local",
		},
		{
			Provider:     "api",
			Protocol:     model.ProtocolBearer,
			StrategyName: "bearer",
		},
	}
}

// TestRegistry_Init はプロトコルごとのストラテジー構築を検証する。
// local/bearerはフックで処理されるためストラテジーを持たない。
func TestRegistry_Init(t *testing.T) {
	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)

	err := registry.Init(nil, testRegistryProviders(), Hooks{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, err := registry.Authenticate("google-oauth2", "s"); err != nil {
		t.Errorf("google-oauth2 strategy should be registered: %v", err)
	}
	if _, err := registry.Authenticate("corp-cas", "s"); err != nil {
		t.Errorf("corp-cas strategy should be registered: %v", err)
	}
	if _, err := registry.Authenticate("local", "s"); !model.HasErrorCode(err, model.ErrCodeInvalidProvider) {
		t.Errorf("local must not have a strategy, got %v", err)
	}
	if _, err := registry.Authenticate("bearer", "s"); !model.HasErrorCode(err, model.ErrCodeInvalidProvider) {
		t.Errorf("bearer must not have a strategy, got %v", err)
	}
}

// TestRegistry_Init_UnsafeEndpoint は危険なエンドポイントURLで初期化が中断されることを検証する。
func TestRegistry_Init_UnsafeEndpoint(t *testing.T) {
	guard := &mockGuard{
		validateURLFunc: func(rawURL string) error {
			return errors.New("blocked IP address")
		},
	}
	registry := NewRegistry(guard, 10*time.Second, 1<<20)

	err := registry.Init(nil, testRegistryProviders(), Hooks{})
	if err == nil {
		t.Fatal("Init should fail for unsafe endpoint URL")
	}
}

// TestRegistry_Init_DuplicateStrategyName はストラテジー名の重複を検証する。
func TestRegistry_Init_DuplicateStrategyName(t *testing.T) {
	providers := []*model.Provider{
		{
			Provider: "google", Protocol: model.ProtocolOAuth2,
			URL: "https://a.example.com", URLValidate: "https://a.example.com/t", URLProfile: "https://a.example.com/u",
			StrategyName: "dup",
		},
		{
			Provider: "facebook", Protocol: model.ProtocolOAuth2,
			URL: "https://b.example.com", URLValidate: "https://b.example.com/t", URLProfile: "https://b.example.com/u",
			StrategyName: "dup",
		},
	}

	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)
	if err := registry.Init(nil, providers, Hooks{}); err == nil {
		t.Fatal("Init should fail for duplicate strategy name")
	}
}

// TestRegistry_Init_EmptyStrategyName はストラテジー名の欠落を検証する。
func TestRegistry_Init_EmptyStrategyName(t *testing.T) {
	providers := []*model.Provider{
		{
			Provider: "google", Protocol: model.ProtocolOAuth2,
			URL: "https://a.example.com", URLValidate: "https://a.example.com/t", URLProfile: "https://a.example.com/u",
		},
	}

	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)
	if err := registry.Init(nil, providers, Hooks{}); err == nil {
		t.Fatal("Init should fail for empty strategy name")
	}
}

// TestRegistry_Authenticate_UnknownStrategy は未登録ストラテジーがINVALID_PROVIDERになることを検証する。
func TestRegistry_Authenticate_UnknownStrategy(t *testing.T) {
	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)

	_, err := registry.Authenticate("no-such-strategy", "s")
	if !model.HasErrorCode(err, model.ErrCodeInvalidProvider) {
		t.Errorf("expected INVALID_PROVIDER, got %v", err)
	}
}

// TestRegistry_Callback_Dispatch はストラテジー名によるコールバックのディスパッチを検証する。
func TestRegistry_Callback_Dispatch(t *testing.T) {
	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)
	registry.Register(&mockStrategy{
		name: "mock",
		callbackFunc: func(ctx context.Context, query url.Values) (*Profile, error) {
			return &Profile{Identifier: "dispatched", Email: query.Get("email")}, nil
		},
	})

	profile, err := registry.Callback(context.Background(), "mock", url.Values{"email": {"x@example.com"}})
	if err != nil {
		t.Fatalf("Callback failed: %v", err)
	}
	if profile.Identifier != "dispatched" || profile.Email != "x@example.com" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

// TestRegistry_Hooks はフックの委譲と未設定時の挙動を検証する。
func TestRegistry_Hooks(t *testing.T) {
	registry := NewRegistry(&mockGuard{}, 10*time.Second, 1<<20)

	// フック未設定: Verifyはパスポートなし、LocalLoginは認証失敗
	pp, err := registry.Verify(context.Background(), "token")
	if err != nil || pp != nil {
		t.Errorf("Verify without hook = (%v, %v), want (nil, nil)", pp, err)
	}
	if _, err := registry.LocalLogin(context.Background(), "alice", "pw"); !model.HasErrorCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("LocalLogin without hook should return INVALID_CREDENTIALS, got %v", err)
	}

	// フック設定後は委譲される
	err = registry.Init(nil, nil, Hooks{
		Verify: func(ctx context.Context, token string) (*model.Passport, error) {
			return &model.Passport{ID: "pp-1", AccessToken: token}, nil
		},
		LocalLogin: func(ctx context.Context, identifier, password string) (*model.Passport, error) {
			return &model.Passport{ID: "pp-2", Username: identifier}, nil
		},
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	pp, err = registry.Verify(context.Background(), "tok-1")
	if err != nil || pp == nil || pp.AccessToken != "tok-1" {
		t.Errorf("Verify = (%+v, %v)", pp, err)
	}
	pp, err = registry.LocalLogin(context.Background(), "alice", "pw")
	if err != nil || pp == nil || pp.Username != "alice" {
		t.Errorf("LocalLogin = (%+v, %v)", pp, err)
	}
}
