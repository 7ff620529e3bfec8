package model

import (
	"net/mail"
	"time"
)

// Passport は1つの連携済みアイデンティティ（ローカル資格情報または外部IdPアカウント）を表す。
// 各Passportはちょうど1人のUserを参照する。
// フェデレーション型は (provider, identifier)、ローカル型は (provider="local", email) が一意キー。
type Passport struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user"`
	Password       string   `json:"-"` // bcryptハッシュ。protocol=localのみ
	Protocol       Protocol `json:"protocol"`
	Provider       string   `json:"provider"`
	Identifier     string   `json:"identifier,omitempty"` // フェデレーション型の外部識別子
	AccessToken    string   `json:"-"`
	TokenExpiresIn string   `json:"tokenExpiresIn,omitempty"`
	TokenExpiresAt string   `json:"tokenExpiresAt,omitempty"`

	// プロバイダーから取得したプロフィール
	NameFirst   string `json:"nameFirst,omitempty"`
	NameLast    string `json:"nameLast,omitempty"`
	NameDisplay string `json:"nameDisplay,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email"`
	Image       string `json:"image,omitempty"`
	Gender      string `json:"gender,omitempty"` // male | female のみ
	Language    string `json:"language"`         // 省略時は "en"

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PasswordMinLength はハッシュ前のパスワードの最小長。
const PasswordMinLength = 8

// DefaultLanguage はプロフィール言語の既定値。
const DefaultLanguage = "en"

// ValidEmail はメールアドレス形式を検証する。
func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// ValidGender は性別が列挙集合に含まれるかを検証する。空文字は未指定として許容する。
func ValidGender(gender string) bool {
	return gender == "" || gender == "male" || gender == "female"
}

// IsLocal はローカル資格情報のPassportかを返す。
func (p *Passport) IsLocal() bool {
	return p.Provider == LocalProviderName
}

// Validate はスキーマレベルの必須制約を検証する。
// 違反した場合はVALIDATION_ERRORのAPIErrorを返す。
func (p *Passport) Validate() error {
	if p.Provider == "" {
		return NewValidationError("provider")
	}
	if p.Protocol == "" || !ValidProtocol(string(p.Protocol)) {
		return NewValidationError("protocol")
	}
	if !ValidEmail(p.Email) {
		return NewValidationError("email")
	}
	if !ValidGender(p.Gender) {
		return NewValidationError("gender")
	}
	return nil
}
