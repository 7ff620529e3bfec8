// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ssokit/internal/middleware"
	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
	"github.com/hitoshi/ssokit/internal/sso"
)

// SSOServiceInterface は認証ハンドラーが必要とするオーケストレーターの
// インターフェース。
type SSOServiceInterface interface {
	Redirect(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName, returnURI string) (*sso.RedirectResult, error)
	Connect(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName string, query url.Values) (*sso.SessionResult, error)
	LocalLogin(ctx context.Context, cache *session.Cache, identifier, password string) (*sso.SessionResult, error)
	Register(ctx context.Context, cache *session.Cache, username, email, password string) (*sso.SessionResult, error)
	Logout(cache *session.Cache) sso.FlowState
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// DefaultReturnURI はreturn_uriが保存されていない場合の
	// セッション確立後のリダイレクト先。
	DefaultReturnURI string
}

// AuthHandler は認証フローのHTTPハンドラー。
type AuthHandler struct {
	service SSOServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service SSOServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.DefaultReturnURI == "" {
		config.DefaultReturnURI = "/"
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// localLoginRequest はローカルログインリクエストのボディ。
type localLoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// registerRequest はローカルユーザー登録リクエストのボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッション確立時のAPIレスポンス。
type sessionResponse struct {
	User      *model.User `json:"user"`
	ReturnURI string      `json:"returnUri,omitempty"`
}

// Login は認証フローを開始し、外部IdPへリダイレクトする。
// ローカルプロバイダーの場合はリダイレクトせずJSONで応答する。
// GET /auth/{provider}/{strategy}/login?return_uri=xxx
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	hostName, err := middleware.HostFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidHostError())
		return
	}

	cache := middleware.CacheFromContext(r.Context())
	providerName := chi.URLParam(r, "provider")
	strategyName := chi.URLParam(r, "strategy")
	returnURI := r.URL.Query().Get("return_uri")

	result, err := h.service.Redirect(r.Context(), cache, hostName, providerName, strategyName, returnURI)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	if result.Local {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"local": true})
		return
	}

	http.Redirect(w, r, result.Location, http.StatusTemporaryRedirect)
}

// Callback は外部IdPからのコールバックを処理し、セッションを確立する。
// 成功時は保存されていたreturn_uri（なければデフォルト）へリダイレクトする。
// GET /auth/{provider}/{strategy}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	hostName, err := middleware.HostFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidHostError())
		return
	}

	cache := middleware.CacheFromContext(r.Context())
	providerName := chi.URLParam(r, "provider")
	strategyName := chi.URLParam(r, "strategy")

	result, err := h.service.Connect(r.Context(), cache, hostName, providerName, strategyName, r.URL.Query())
	if err != nil {
		slog.Warn("federated callback failed",
			slog.String("host", hostName),
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		middleware.WriteAPIError(w, err)
		return
	}

	returnURI := result.ReturnURI
	if returnURI == "" {
		returnURI = h.config.DefaultReturnURI
	}
	http.Redirect(w, r, returnURI, http.StatusTemporaryRedirect)
}

// LocalLogin はローカルプロバイダーでの認証を処理する。
// POST /auth/login/local
func (h *AuthHandler) LocalLogin(w http.ResponseWriter, r *http.Request) {
	var req localLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("body"))
		return
	}

	cache := middleware.CacheFromContext(r.Context())

	result, err := h.service.LocalLogin(r.Context(), cache, req.Identifier, req.Password)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeSessionResponse(w, http.StatusOK, result)
}

// Register はローカルユーザーを登録し、セッションを確立する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("body"))
		return
	}

	cache := middleware.CacheFromContext(r.Context())

	result, err := h.service.Register(r.Context(), cache, req.Username, req.Email, req.Password)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeSessionResponse(w, http.StatusCreated, result)
}

// Logout はセッションの認証済み領域を破棄する。
// セッション自体は匿名状態で継続する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cache := middleware.CacheFromContext(r.Context())
	h.service.Logout(cache)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cache := middleware.CacheFromContext(r.Context())
	if cache == nil {
		middleware.WriteAPIError(w, model.NewInvalidCredentialsError())
		return
	}

	user, ok := cache.ReadUser()
	if !ok {
		middleware.WriteAPIError(w, model.NewInvalidCredentialsError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// writeSessionResponse はセッション確立結果をJSONで書き込む。
func writeSessionResponse(w http.ResponseWriter, statusCode int, result *sso.SessionResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(sessionResponse{
		User:      result.User,
		ReturnURI: result.ReturnURI,
	})
}
