package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/hitoshi/ssokit/internal/host"
	"github.com/hitoshi/ssokit/internal/model"
)

// NewHostScopeMiddleware はリクエストのHostヘッダをホスト登録簿で解決し、
// 未登録ホストからのリクエストを403で拒否するミドルウェアを返す。
// 解決済みの正規化ホスト名はリクエストコンテキストに注入される。
// 解決はセッションキャッシュ優先で行われる。
func NewHostScopeMiddleware(hostSvc *host.Service) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hostName := requestHostName(r)
			cache := CacheFromContext(r.Context())

			h, err := hostSvc.GetHost(r.Context(), cache, hostName)
			if err != nil {
				WriteAPIError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), hostContextKey, h.HostName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestHostName はHostヘッダからポート部を除いたホスト名を返す。
func requestHostName(r *http.Request) string {
	hostName := r.Host
	if h, _, err := net.SplitHostPort(hostName); err == nil {
		hostName = h
	}
	return model.NormalizeHostName(hostName)
}

// HostFromContext はリクエストコンテキストから正規化済みホスト名を取得する。
// ホストスコープミドルウェアを通過したリクエストでのみ有効。
func HostFromContext(ctx context.Context) (string, error) {
	hostName, ok := ctx.Value(hostContextKey).(string)
	if !ok || hostName == "" {
		return "", fmt.Errorf("host not found in context")
	}
	return hostName, nil
}

// ContextWithHost はコンテキストにホスト名を注入する。テスト用。
func ContextWithHost(ctx context.Context, hostName string) context.Context {
	return context.WithValue(ctx, hostContextKey, hostName)
}
