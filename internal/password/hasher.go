// Package password はローカルパスワードの一方向ハッシュ化と検証を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/ssokit/internal/model"
)

// DefaultCost はbcryptのワークファクタ。10ラウンド相当で固定する。
const DefaultCost = 10

// Hasher はパスワードのハッシュ化と検証を行う。
type Hasher struct {
	cost int
}

// NewHasher は既定のワークファクタでHasherを生成する。
func NewHasher() *Hasher {
	return &Hasher{cost: DefaultCost}
}

// NewHasherWithCost は指定ワークファクタでHasherを生成する。
// bcryptの許容範囲外のコストは既定値に丸める。
func NewHasherWithCost(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードをbcryptでハッシュ化する。
// 空文字の場合は「ローカル資格情報なし」を意味するため、入力をそのまま返す。
// 呼び出し側は空パスワードを有効なアカウントとして扱ってはならない。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %s", model.NewHashFailureError(), err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードと保存済みハッシュを照合する。
// 不一致は (false, nil)。保存ハッシュの破損などプリミティブ自体の異常は
// HASH_FAILUREとして返し、検証失敗と混同しない。
// bcryptの比較は分岐によらず定数時間で行われる。
func (h *Hasher) Verify(plaintext, hashed string) (bool, error) {
	if hashed == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", model.NewHashFailureError(), err)
}
