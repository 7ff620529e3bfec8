// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// クライアントが分岐できるよう、Codeは安定した列挙可能な値とする。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodeLinkConflict          = "LINK_CONFLICT"
	ErrCodeHashFailure           = "HASH_FAILURE"
	ErrCodeUpstreamProviderError = "UPSTREAM_PROVIDER_ERROR"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeInvalidProvider       = "INVALID_PROVIDER"
	ErrCodeInvalidHost           = "INVALID_HOST"
	ErrCodeForbidden             = "FORBIDDEN"
)

// NewInvalidRequestError は必須の識別フィールドが欠落しているエラーを生成する。
func NewInvalidRequestError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("必須フィールドが指定されていません: %s", field),
		Category: "validation",
		Action:   "リクエストのパラメータを確認してください。",
	}
}

// NewNotFoundError はレコード未検出エラーを生成する。
// 多くの場合は正当な否定結果であり、呼び出し側が判断する。
func NewNotFoundError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s が見つかりません。", kind),
		Category: "auth",
		Action:   "指定した値を確認してください。",
	}
}

// NewValidationError はスキーマレベルのフィールド違反エラーを生成する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationError,
		Message:  fmt.Sprintf("フィールドの値が不正です: %s", field),
		Category: "validation",
		Action:   "入力値の形式を確認してください。",
	}
}

// NewLinkConflictError はアイデンティティキーが別ユーザーに属している場合のエラーを生成する。
// この衝突は必ず表面化させ、黙って上書きしてはならない。
func NewLinkConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkConflict,
		Message:  "このアイデンティティは既に別のユーザーに連携されています。",
		Category: "auth",
		Action:   "既存のアカウントでログインするか、管理者に連絡してください。",
	}
}

// NewHashFailureError はハッシュプリミティブの異常を表すエラーを生成する。
// 検証失敗とは区別され、リクエストに対して致命的となる。
func NewHashFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeHashFailure,
		Message:  "資格情報の処理中に内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamProviderError は外部プロトコルライブラリの失敗エラーを生成する。
func NewUpstreamProviderError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamProviderError,
		Message:  fmt.Sprintf("認証プロバイダーとの通信に失敗しました: %s", reason),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidCredentialsError はローカルログイン失敗の汎用エラーを生成する。
// ユーザー名とパスワードのどちらが誤っていたかは開示しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "認証情報が正しくありません。",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewInvalidProviderError はホストに対して無効なプロバイダーが指定された場合のエラーを生成する。
// プロバイダー登録簿の内容は開示しない。
func NewInvalidProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProvider,
		Message:  "このホストでは指定されたプロバイダーを利用できません。",
		Category: "auth",
		Action:   "利用可能なプロバイダー一覧を確認してください。",
	}
}

// NewInvalidHostError は未登録ホストからのリクエストに対するエラーを生成する。
func NewInvalidHostError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHost,
		Message:  "このホストからのリクエストは許可されていません。",
		Category: "auth",
		Action:   "ホストの登録状況を管理者に確認してください。",
	}
}

// NewForbiddenError は権限不足のリクエストに対するエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "必要な権限を持つアカウントでログインしてください。",
	}
}

// AsAPIError はエラーチェーンから*APIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasErrorCode はエラーチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasErrorCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}
