package middleware

import (
	"net/http"

	"github.com/hitoshi/ssokit/internal/model"
)

// NewRequireGroupMiddleware は指定グループのいずれかに属するユーザーのみを
// 通過させるミドルウェアを返す。認可ミドルウェアの後段に配置する。
// コンテキストにユーザーがいない場合は401、グループ不一致は403を返す。
func NewRequireGroupMiddleware(groupNames ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
				return
			}

			for _, name := range groupNames {
				if user.InGroup(name) {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		})
	}
}
