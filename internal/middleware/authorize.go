package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
	"github.com/hitoshi/ssokit/internal/sso"
)

// BearerAuthenticator はベアラートークンによるセッション確立を提供する。
// sso.Serviceの部分集合として定義する。
type BearerAuthenticator interface {
	Bearer(ctx context.Context, cache *session.Cache, token string) (*sso.SessionResult, error)
}

// NewAuthorizeMiddleware は認証済みリクエストのみを通過させるミドルウェアを返す。
// セッションキャッシュの認証済みユーザーを最優先で読み、
// 未認証の場合はAuthorizationヘッダのベアラートークンを検証する。
// どちらも失敗した場合は401を返す。
// 通過したリクエストのコンテキストにはユーザーIDと認証済みユーザーが注入される。
func NewAuthorizeMiddleware(bearer BearerAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cache := CacheFromContext(r.Context())

			if cache != nil {
				if user, ok := cache.ReadUser(); ok {
					ctx := ContextWithUserID(r.Context(), user.ID)
					ctx = ContextWithUser(ctx, user)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if token := bearerToken(r); token != "" && bearer != nil {
				result, err := bearer.Bearer(r.Context(), cache, token)
				if err == nil && result != nil {
					ctx := ContextWithUserID(r.Context(), result.User.ID)
					ctx = ContextWithUser(ctx, result.User)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		})
	}
}

// bearerToken はAuthorizationヘッダからベアラートークンを取り出す。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return auth[len(prefix):]
}
