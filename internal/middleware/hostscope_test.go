package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/ssokit/internal/host"
	"github.com/hitoshi/ssokit/internal/model"
)

// mockHostRepo はrepository.HostRepositoryのモック。
type mockHostRepo struct {
	findByNameFn func(ctx context.Context, hostName, environment string) (*model.Host, error)
}

func (m *mockHostRepo) FindByEnvironment(ctx context.Context, environment string) ([]*model.Host, error) {
	return nil, nil
}

func (m *mockHostRepo) FindByName(ctx context.Context, hostName, environment string) (*model.Host, error) {
	if m.findByNameFn != nil {
		return m.findByNameFn(ctx, hostName, environment)
	}
	return nil, nil
}

func (m *mockHostRepo) Upsert(ctx context.Context, h *model.Host) (*model.Host, error) {
	return h, nil
}

func TestHostScopeMiddleware_RegisteredHost_InjectsHostName(t *testing.T) {
	repo := &mockHostRepo{
		findByNameFn: func(ctx context.Context, hostName, environment string) (*model.Host, error) {
			if hostName == "intranet.example.com" {
				return &model.Host{ID: "host-1", HostName: "intranet.example.com"}, nil
			}
			return nil, nil
		},
	}
	mw := NewHostScopeMiddleware(host.NewService(repo, "production"))

	var capturedHost string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedHost, _ = HostFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Host = "INTRANET.example.com:8080"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	// 正規化済みホスト名が注入される
	if capturedHost != "intranet.example.com" {
		t.Errorf("host = %q, want intranet.example.com", capturedHost)
	}
}

func TestHostScopeMiddleware_UnknownHost_Returns403(t *testing.T) {
	repo := &mockHostRepo{}
	mw := NewHostScopeMiddleware(host.NewService(repo, "production"))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Host = "rogue.example.com"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestHostFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := HostFromContext(context.Background()); err == nil {
		t.Error("expected error for missing host in context")
	}
}
