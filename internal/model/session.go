package model

import "time"

// Session はユーザーのログインセッションを表す。
// Dataは不透明なキーバリューバッグで、本コアは auth.* 名前空間と
// lastUri のみを操作する。
type Session struct {
	ID        string
	UserID    string // 未認証セッションでは空
	Data      map[string]any
	ExpiresAt time.Time
	CreatedAt time.Time
}

// セッションバッグ内で本コアが使用する予約キー。
// 互換性のため、キー名は変更してはならない。
const (
	SessionKeyHosts      = "auth.hosts"
	SessionKeyProviders  = "auth.providers"
	SessionKeyUser       = "auth.user"
	SessionKeyPassports  = "auth.passports"
	SessionKeyLastURI    = "lastUri"
	SessionKeyLoginState = "auth.loginState"
)
