// Package sso はフェデレーション認証のストラテジーと認証フローの調整を提供する。
//
// 各ストラテジーは設定済みプロバイダーのエンドポイントに対して
// リダイレクトURLの生成とコールバックの検証を行い、
// プロバイダー固有のレスポンスを正規化されたProfileに変換する。
package sso

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/ssokit/internal/model"
)

// Profile は外部IdPから取得したプロフィールの正規化表現。
// ストラテジーごとのクレーム名の揺れはこの形式への変換で吸収する。
type Profile struct {
	Identifier     string // IdP内のユーザー識別子。フェデレーション型では必須
	Email          string
	Username       string
	NameFirst      string
	NameLast       string
	NameDisplay    string
	Image          string
	Gender         string
	Language       string
	AccessToken    string
	TokenExpiresIn string
}

// Strategy は1つの設定済みプロバイダーに対する認証手順を表す。
type Strategy interface {
	// Name はストラテジー名を返す。プロバイダーのstrategy_nameと一致する。
	Name() string

	// LoginURL は外部IdPへのリダイレクトURLを生成する。
	// stateはCSRF防止用の不透明な値であり、そのままIdPへ引き渡される。
	LoginURL(state string) string

	// Callback はIdPからのコールバックのクエリパラメータを検証し、
	// 正規化されたプロフィールを返す。
	// IdPがエラーを返した場合や検証に失敗した場合はUPSTREAM_PROVIDER_ERRORを返す。
	Callback(ctx context.Context, query url.Values) (*Profile, error)
}

// claimAliases は正規化フィールドごとのクレーム名の候補。
// OpenID Connect標準クレームと主要IdPの独自クレームを含む。
var claimAliases = map[string][]string{
	"identifier": {"sub", "id", "user_id"},
	"email":      {"email"},
	"username":   {"preferred_username", "login", "username", "screen_name"},
	"nameFirst":  {"given_name", "first_name"},
	"nameLast":   {"family_name", "last_name"},
	"name":       {"name", "display_name"},
	"image":      {"picture", "avatar_url", "profile_image_url"},
	"gender":     {"gender"},
	"language":   {"locale", "lang", "language"},
}

// profileFromClaims はIdPのレスポンス（JSONデコード済みマップ）を正規化する。
// 数値で返る識別子（GitHubのid等）は10進文字列に変換する。
func profileFromClaims(claims map[string]any) *Profile {
	p := &Profile{
		Identifier:  claimString(claims, claimAliases["identifier"]),
		Email:       claimString(claims, claimAliases["email"]),
		Username:    claimString(claims, claimAliases["username"]),
		NameFirst:   claimString(claims, claimAliases["nameFirst"]),
		NameLast:    claimString(claims, claimAliases["nameLast"]),
		NameDisplay: claimString(claims, claimAliases["name"]),
		Image:       claimString(claims, claimAliases["image"]),
		Gender:      claimString(claims, claimAliases["gender"]),
		Language:    claimString(claims, claimAliases["language"]),
	}

	// ロケールは "en-US" 形式で返るIdPがあるため言語部分のみを使う
	if idx := strings.IndexAny(p.Language, "-_"); idx > 0 {
		p.Language = p.Language[:idx]
	}
	// 列挙集合外の性別は未指定として扱う
	if !model.ValidGender(p.Gender) {
		p.Gender = ""
	}

	return p
}

// claimString は候補キーを順に探し、最初に見つかった値を文字列として返す。
func claimString(claims map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := claims[key]
		if !ok || v == nil {
			continue
		}
		switch value := v.(type) {
		case string:
			if value != "" {
				return value
			}
		case float64:
			// encoding/jsonはJSON数値をfloat64にデコードする
			return strconv.FormatInt(int64(value), 10)
		}
	}
	return ""
}
