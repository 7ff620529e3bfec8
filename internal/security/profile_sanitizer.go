// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService は外部IdPから取得したプロフィール文字列をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicyを使用し、HTMLタグを一切通過させない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィール文字列のサニタイズ機能のインターフェースを定義する。
// 表示名や氏名など、IdPが返すテキストフィールドのパスポート保存前に使用される。
type ProfileSanitizerService interface {
	// Sanitize は入力文字列からHTMLタグをすべて除去して返す。
	// script, iframe, img等のタグおよびon*イベント属性は痕跡を残さず除去される。
	// 前後の空白もトリムされる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string

	// SanitizeAll は複数の文字列をまとめてサニタイズする。
	// パスポートのプロフィールフィールド一式を保存前に処理する用途。
	SanitizeAll(raws ...*string)
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可しないため、プロフィール文字列は
// プレーンテキストとしてのみ保存される。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力文字列からHTMLタグをすべて除去して返す。
func (s *profileSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// SanitizeAll は複数の文字列をまとめてサニタイズする。
// nilポインタは無視される。
func (s *profileSanitizer) SanitizeAll(raws ...*string) {
	for _, r := range raws {
		if r == nil {
			continue
		}
		*r = s.Sanitize(*r)
	}
}
