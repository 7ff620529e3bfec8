package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Protocol は認証プロトコルを表す。
type Protocol string

const (
	ProtocolBearer Protocol = "bearer"
	ProtocolLocal  Protocol = "local"
	ProtocolOAuth  Protocol = "oauth"
	ProtocolOAuth2 Protocol = "oauth2"
	ProtocolOpenID Protocol = "openid"
	ProtocolCAS    Protocol = "cas"
)

// Protocols は許可されるプロトコルの列挙集合。
var Protocols = []Protocol{
	ProtocolBearer,
	ProtocolLocal,
	ProtocolOAuth,
	ProtocolOAuth2,
	ProtocolOpenID,
	ProtocolCAS,
}

// ValidProtocol はプロトコルが列挙集合に含まれるかを検証する。
func ValidProtocol(p string) bool {
	for _, proto := range Protocols {
		if string(proto) == p {
			return true
		}
	}
	return false
}

// AuthType はプロバイダーの認可方式を表す。
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeCode  AuthType = "code"
)

// ValidAuthType は認可方式が列挙集合に含まれるかを検証する。
func ValidAuthType(t string) bool {
	switch AuthType(t) {
	case AuthTypeNone, AuthTypeToken, AuthTypeCode:
		return true
	}
	return false
}

// LocalProviderName はローカル認証プロバイダーの予約名。
const LocalProviderName = "local"

// Provider は設定済みの認証プロバイダー（IdP）とその接続パラメータを表す。
// Hostsに含まれるホストだけがこのプロバイダーを利用できる。
type Provider struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`     // ストラテジー名（例: "google-oauth2"）
	Provider     string   `json:"provider"` // プロバイダー名（例: "google"）。設定の列挙集合に属する
	Protocol     Protocol `json:"protocol"`
	Type         AuthType `json:"type"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`         // 認可エンドポイント
	URLValidate  string   `json:"urlValidate"` // トークン交換・検証エンドポイント
	URLProfile   string   `json:"urlProfile"`  // プロフィール取得エンドポイント
	URLCallback  string   `json:"urlCallback"`
	Scope        []string `json:"scope"`
	Fields       []string `json:"fields"`
	ClientID     string   `json:"clientID"`
	ClientSecret string   `json:"-"` // 外部向けシリアライズでは常に秘匿
	Hosts        []string `json:"-"` // 外部向けシリアライズでは常に秘匿
	StrategyName string   `json:"strategyName"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Redacted はクライアント秘密鍵と許可ホスト一覧を除いたコピーを返す。
// 外部に返却するプロバイダー情報はすべてこの形式を経由する。
func (p *Provider) Redacted() *Provider {
	redacted := *p
	redacted.ClientSecret = ""
	redacted.Hosts = nil
	return &redacted
}

// AllowsHost は指定ホストがこのプロバイダーを利用できるかを返す。
func (p *Provider) AllowsHost(hostName string) bool {
	return ContainsHost(p.Hosts, hostName)
}

// IsLocal はローカル認証プロバイダーかを返す。
func (p *Provider) IsLocal() bool {
	return strings.ToLower(p.Provider) == LocalProviderName
}

// MarshalJSON は秘匿フィールドを除いたJSONを生成する。
func (p *Provider) MarshalJSON() ([]byte, error) {
	type alias Provider
	redacted := alias(*p.Redacted())
	return json.Marshal(&redacted)
}
