package session

import (
	"encoding/json"

	"github.com/hitoshi/ssokit/internal/model"
)

// Cache はセッションに載る認可スナップショットのリードスルーキャッシュ。
// hosts / providers / 認証済みユーザーの3つの独立した領域を持つ。
//
// 読み取りは決してエラーにならない。デコードできない値はミスとして扱い、
// 呼び出し側が権威ストアへフォールバックして再取得・再格納する。
// 管理系の書き込みは呼び出し元セッションの領域だけを無効化する。
// セッション横断のブロードキャスト無効化は行わない（許容された設計トレードオフ）。
type Cache struct {
	bag *Bag
}

// NewCache はセッションのデータバッグを包むCacheを生成する。
func NewCache(sess *model.Session) *Cache {
	if sess.Data == nil {
		sess.Data = make(map[string]any)
	}
	return &Cache{bag: NewBag(sess.Data)}
}

// NewCacheFromBag は既存のBagを包むCacheを生成する。
func NewCacheFromBag(bag *Bag) *Cache {
	return &Cache{bag: bag}
}

// decode はバッグ内の値を型付きの値に復元する。
// 同一リクエスト内では型付きの値が、永続化を経た後のリクエストでは
// JSONデコード済みのマップが入っているため、一度JSONを経由して吸収する。
func decode(raw any, out any) bool {
	buf, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(buf, out) == nil
}

// ReadHosts はキャッシュ済みホスト一覧を読み取る。ミスの場合は (nil, false)。
func (c *Cache) ReadHosts() ([]*model.Host, bool) {
	raw, ok := c.bag.Get(model.SessionKeyHosts)
	if !ok {
		return nil, false
	}
	var hosts []*model.Host
	if !decode(raw, &hosts) || len(hosts) == 0 {
		return nil, false
	}
	return hosts, true
}

// PopulateHosts はホスト領域を無条件に上書きする。
func (c *Cache) PopulateHosts(hosts []*model.Host) {
	c.bag.Set(model.SessionKeyHosts, hosts)
}

// InvalidateHosts はホスト領域を削除する。次回の読み取りはミスになる。
func (c *Cache) InvalidateHosts() {
	c.bag.Delete(model.SessionKeyHosts)
}

// ReadProviders はキャッシュ済みプロバイダー一覧を読み取る。ミスの場合は (nil, false)。
func (c *Cache) ReadProviders() ([]*model.Provider, bool) {
	raw, ok := c.bag.Get(model.SessionKeyProviders)
	if !ok {
		return nil, false
	}
	var providers []*model.Provider
	if !decode(raw, &providers) || len(providers) == 0 {
		return nil, false
	}
	return providers, true
}

// PopulateProviders はプロバイダー領域を無条件に上書きする。
func (c *Cache) PopulateProviders(providers []*model.Provider) {
	c.bag.Set(model.SessionKeyProviders, providers)
}

// InvalidateProviders はプロバイダー領域を削除する。
func (c *Cache) InvalidateProviders() {
	c.bag.Delete(model.SessionKeyProviders)
}

// ReadUser はキャッシュ済みの認証済みユーザーを読み取る。ミスの場合は (nil, false)。
func (c *Cache) ReadUser() (*model.User, bool) {
	raw, ok := c.bag.Get(model.SessionKeyUser)
	if !ok {
		return nil, false
	}
	var user model.User
	if !decode(raw, &user) || user.ID == "" {
		return nil, false
	}
	return &user, true
}

// PopulateUser は認証済みユーザー領域を無条件に上書きする。
func (c *Cache) PopulateUser(user *model.User) {
	c.bag.Set(model.SessionKeyUser, user)
}

// InvalidateUser は認証済みユーザー領域を削除する。
func (c *Cache) InvalidateUser() {
	c.bag.Delete(model.SessionKeyUser)
}

// ReadPassports はセッションに積まれたPassport一覧を読み取る。
func (c *Cache) ReadPassports() ([]*model.Passport, bool) {
	raw, ok := c.bag.Get(model.SessionKeyPassports)
	if !ok {
		return nil, false
	}
	var passports []*model.Passport
	if !decode(raw, &passports) || len(passports) == 0 {
		return nil, false
	}
	return passports, true
}

// AppendPassport はセッションのPassport一覧に1件追加する。
func (c *Cache) AppendPassport(passport *model.Passport) {
	passports, _ := c.ReadPassports()
	passports = append(passports, passport)
	c.bag.Set(model.SessionKeyPassports, passports)
}

// LastURI はログイン完了後のリダイレクト先を読み取る。
func (c *Cache) LastURI() (string, bool) {
	raw, ok := c.bag.Get(model.SessionKeyLastURI)
	if !ok {
		return "", false
	}
	uri, ok := raw.(string)
	if !ok || uri == "" {
		return "", false
	}
	return uri, true
}

// SetLastURI はログイン完了後のリダイレクト先を記録する。
func (c *Cache) SetLastURI(uri string) {
	c.bag.Set(model.SessionKeyLastURI, uri)
}

// ClearLastURI はリダイレクト先を削除する。
func (c *Cache) ClearLastURI() {
	c.bag.Delete(model.SessionKeyLastURI)
}

// SetLoginState は外部IdPへ引き渡したstate値を記録する。
func (c *Cache) SetLoginState(state string) {
	c.bag.Set(model.SessionKeyLoginState, state)
}

// ConsumeLoginState はstate値を読み取り、同時に削除する。
// 1つのstateは1回のコールバックでしか照合できない。
func (c *Cache) ConsumeLoginState() (string, bool) {
	raw, ok := c.bag.Get(model.SessionKeyLoginState)
	c.bag.Delete(model.SessionKeyLoginState)
	if !ok {
		return "", false
	}
	state, ok := raw.(string)
	if !ok || state == "" {
		return "", false
	}
	return state, true
}

// ClearAuth はログアウト時に認証済みユーザーとPassport、リダイレクト先を削除する。
// hosts/providers領域はセッション寿命内の再利用を許すため残す。
func (c *Cache) ClearAuth() {
	c.bag.Delete(model.SessionKeyUser)
	c.bag.Delete(model.SessionKeyPassports)
	c.bag.Delete(model.SessionKeyLastURI)
	c.bag.Delete(model.SessionKeyLoginState)
}

// Authenticated は認証済みユーザーがセッションに存在するかを返す。
func (c *Cache) Authenticated() bool {
	_, ok := c.ReadUser()
	return ok
}
