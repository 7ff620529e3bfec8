// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	cacheContextKey   = contextKey("session_cache")
	userIDContextKey  = contextKey("user_id")
	userContextKey    = contextKey("user")
	hostContextKey    = contextKey("host")
)

// SessionStore はセッションの読み書きに必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionStore interface {
	Create(ctx context.Context, sess *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	MaxAge       int  // 秒
	CookieSecure bool
}

// NewSessionMiddleware はHTTP Only Cookieからセッションバッグを読み込み、
// 認可スナップショットのキャッシュと共にリクエストコンテキストへ注入する。
// セッションが存在しない・期限切れの場合は新しい匿名セッションを払い出す。
// ハンドラ完了後、バッグへの変更を保存する。
func NewSessionMiddleware(store SessionStore, cfg SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := loadSession(r, store)
			if sess == nil {
				var err error
				sess, err = createSession(r.Context(), store, cfg)
				if err != nil {
					slog.Error("セッションの作成に失敗しました", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    sess.ID,
					Path:     "/",
					MaxAge:   cfg.MaxAge,
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			cache := session.NewCache(sess)
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			ctx = context.WithValue(ctx, cacheContextKey, cache)

			next.ServeHTTP(w, r.WithContext(ctx))

			// 認証フローによるバッグの変更を保存する。last-writer-wins
			if err := store.Save(r.Context(), sess); err != nil {
				slog.Error("セッションの保存に失敗しました",
					slog.String("session_id", sess.ID),
					slog.String("error", err.Error()))
			}
		})
	}
}

// loadSession はCookieからセッションを復元する。復元できない場合はnilを返す。
func loadSession(r *http.Request, store SessionStore) *model.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := store.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("セッションの取得に失敗しました", slog.String("error", err.Error()))
		return nil
	}
	return sess
}

// createSession は新しい匿名セッションを払い出す。
func createSession(ctx context.Context, store SessionStore, cfg SessionConfig) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	sess := &model.Session{
		ID:        id,
		Data:      make(map[string]any),
		ExpiresAt: time.Now().Add(time.Duration(cfg.MaxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return sess, nil
}

// CacheFromContext はリクエストコンテキストから認可スナップショットを取得する。
// セッションミドルウェアを通過していないリクエストではnilを返す。
// キャッシュのないフローも動作するため、nilは呼び出し側でそのまま扱える。
func CacheFromContext(ctx context.Context) *session.Cache {
	cache, _ := ctx.Value(cacheContextKey).(*session.Cache)
	return cache
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認可ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認可ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// ContextWithCache はコンテキストに認可スナップショットを注入する。
func ContextWithCache(ctx context.Context, cache *session.Cache) context.Context {
	return context.WithValue(ctx, cacheContextKey, cache)
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
