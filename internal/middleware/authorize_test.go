package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
	"github.com/hitoshi/ssokit/internal/sso"
)

// mockBearerAuthenticator はBearerAuthenticatorのモック。
type mockBearerAuthenticator struct {
	bearerFn func(ctx context.Context, cache *session.Cache, token string) (*sso.SessionResult, error)
}

func (m *mockBearerAuthenticator) Bearer(ctx context.Context, cache *session.Cache, token string) (*sso.SessionResult, error) {
	if m.bearerFn != nil {
		return m.bearerFn(ctx, cache, token)
	}
	return nil, nil
}

func authenticatedCache(userID string) *session.Cache {
	cache := session.NewCache(&model.Session{Data: map[string]any{}})
	cache.PopulateUser(&model.User{ID: userID, Email: userID + "@example.com"})
	return cache
}

func TestAuthorizeMiddleware_CachedUser_InjectsUserID(t *testing.T) {
	mw := NewAuthorizeMiddleware(&mockBearerAuthenticator{})

	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected user ID in context: %v", err)
		}
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(ContextWithCache(req.Context(), authenticatedCache("user-123")))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want user-123", capturedUserID)
	}
}

func TestAuthorizeMiddleware_BearerToken_InjectsUserID(t *testing.T) {
	bearer := &mockBearerAuthenticator{
		bearerFn: func(ctx context.Context, cache *session.Cache, token string) (*sso.SessionResult, error) {
			if token != "tok-1" {
				t.Errorf("token = %q, want tok-1", token)
			}
			return &sso.SessionResult{User: &model.User{ID: "user-9"}}, nil
		},
	}
	mw := NewAuthorizeMiddleware(bearer)

	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d", w.Result().StatusCode)
	}
	if capturedUserID != "user-9" {
		t.Errorf("userID = %q, want user-9", capturedUserID)
	}
}

func TestAuthorizeMiddleware_UnknownBearerToken_Returns401(t *testing.T) {
	// トークン不在は未認証（nil, nil）として扱われ、401になる
	mw := NewAuthorizeMiddleware(&mockBearerAuthenticator{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer no-such-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthorizeMiddleware_NoCredentials_Returns401(t *testing.T) {
	mw := NewAuthorizeMiddleware(&mockBearerAuthenticator{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestBearerToken_Parsing(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"標準形式", "Bearer tok-abc", "tok-abc"},
		{"小文字プレフィックス", "bearer tok-abc", "tok-abc"},
		{"ヘッダなし", "", ""},
		{"Basic認証", "Basic dXNlcjpwdw==", ""},
		{"トークンなし", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.want {
				t.Errorf("bearerToken = %q, want %q", got, tt.want)
			}
		})
	}
}
