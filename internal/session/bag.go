// Package session はセッションバッグと認可スナップショットキャッシュを提供する。
//
// セッション本体は不透明なキーバリューストアとして扱い、本コアは
// auth.* 名前空間（auth.hosts / auth.providers / auth.user / auth.passports）と
// lastUri のみを操作する。これらのキー名はセッションを読む他のコラボレータとの
// 互換性のため変更してはならない。
package session

import "strings"

// Bag はドット区切りパスでネストしたget/set/deleteができるキーバリューバッグ。
// 値はJSONシリアライズ可能であることを前提とする。
type Bag struct {
	data map[string]any
}

// NewBag は既存のデータマップを包むBagを生成する。nilの場合は空のバッグになる。
func NewBag(data map[string]any) *Bag {
	if data == nil {
		data = make(map[string]any)
	}
	return &Bag{data: data}
}

// Data は内部のデータマップを返す。永続化時のシリアライズに使用する。
func (b *Bag) Data() map[string]any {
	return b.data
}

// Get はドット区切りパスの値を取得する。
func (b *Bag) Get(path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := b.data
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Set はドット区切りパスに値を設定する。中間のマップは必要に応じて生成する。
// 中間に非マップ値が存在する場合はマップで置き換える。
func (b *Bag) Set(path string, value any) {
	parts := strings.Split(path, ".")
	current := b.data
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = value
			return
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
}

// Delete はドット区切りパスの値を削除する。存在しないパスは何もしない。
func (b *Bag) Delete(path string) {
	parts := strings.Split(path, ".")
	current := b.data
	for i, part := range parts {
		if i == len(parts)-1 {
			delete(current, part)
			return
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
}
