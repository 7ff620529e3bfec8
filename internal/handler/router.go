package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ssokit/internal/host"
	"github.com/hitoshi/ssokit/internal/middleware"
	"github.com/hitoshi/ssokit/internal/model"
)

// HealthChecker はヘルスチェックのためのDB疎通確認インターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionStore      middleware.SessionStore
	SessionConfig     middleware.SessionConfig
	HostService       *host.Service
	Bearer            middleware.BearerAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	MetricsHandler    http.Handler

	// 認証フロー
	SSOService SSOServiceInterface
	AuthConfig AuthHandlerConfig

	// 管理API
	Hosts     HostServiceInterface
	Providers ProviderServiceInterface
	Directory DirectoryServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → SecurityHeadersMiddleware →
//	CORSMiddleware → SessionMiddleware → HostScopeMiddleware →
//	  （認証ルート）RateLimiter.LoginMiddleware
//	  （管理ルート）AuthorizeMiddleware → RequireGroupMiddleware → RateLimiter.GeneralMiddleware → CSRFMiddleware
//
// /health、/metrics、/api/csrf-token はホストスコープの外に置く。
// セッションミドルウェアは未知のクライアントに匿名セッションを発行し、
// ホストスコープは未登録ホストからの要求を403で拒否する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// ヘルスチェック（ホストスコープ外。ローカルホストからの疎通確認に使う）
	r.Get("/health", NewHealthHandler(deps.HealthChecker).ServeHTTP)

	// CSRFトークン取得エンドポイント（認証不要）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// Prometheusスクレイプエンドポイント（ホストスコープ外）
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.SSOService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.Hosts, deps.Providers, deps.Directory)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionConfig))
		r.Use(middleware.NewHostScopeMiddleware(deps.HostService))

		// --- 認証ルート ---
		// 認証前のクライアントが使うため認可ミドルウェアは通さない。
		// 認証試行はIP単位のレート制限で保護する。
		r.Route("/auth", func(r chi.Router) {
			loginLimit := deps.RateLimiter.LoginMiddleware()

			r.With(loginLimit).Post("/register", authHandler.Register)
			r.With(loginLimit).Post("/login/local", authHandler.LocalLogin)

			r.Route("/{provider}/{strategy}", func(r chi.Router) {
				r.With(loginLimit).Get("/login", authHandler.Login)
				r.Get("/callback", authHandler.Callback)
			})

			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- 管理ルート ---
		// ミドルウェアスタック: Authorize → RequireGroup → RateLimit(General) → CSRF
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthorizeMiddleware(deps.Bearer))
			r.Use(middleware.NewRequireGroupMiddleware(model.SuperuserGroupName, model.AdminGroupName))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Route("/api/hosts", func(r chi.Router) {
				r.Get("/", adminHandler.ListHosts)
				r.Post("/", adminHandler.AddHost)
			})

			r.Route("/api/providers", func(r chi.Router) {
				r.Get("/", adminHandler.ListProviders)
				r.Post("/", adminHandler.AddProvider)
			})

			r.Get("/api/users", adminHandler.ListUsers)
		})
	})

	return r
}
