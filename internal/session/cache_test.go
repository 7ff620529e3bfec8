package session

import (
	"encoding/json"
	"testing"

	"github.com/hitoshi/ssokit/internal/model"
)

func newTestSession() *model.Session {
	return &model.Session{ID: "sess-1", Data: make(map[string]any)}
}

// populate後のreadはストアアクセスなしで同じ値を返し、
// invalidate後のreadはミスになることを検証（スナップショットの基本特性）
func TestCache_PopulateReadInvalidate_Hosts(t *testing.T) {
	cache := NewCache(newTestSession())

	if _, ok := cache.ReadHosts(); ok {
		t.Fatal("expected initial read to miss")
	}

	hosts := []*model.Host{
		{ID: "h1", HostName: "intranet.example.com", Environments: []string{"production"}},
	}
	cache.PopulateHosts(hosts)

	got, ok := cache.ReadHosts()
	if !ok {
		t.Fatal("expected hit after populate")
	}
	if len(got) != 1 || got[0].HostName != "intranet.example.com" {
		t.Errorf("unexpected hosts: %+v", got)
	}

	cache.InvalidateHosts()
	if _, ok := cache.ReadHosts(); ok {
		t.Error("expected miss after invalidate")
	}
}

// 3つの領域が互いに独立していることを検証
func TestCache_RegionsAreIndependent(t *testing.T) {
	cache := NewCache(newTestSession())

	cache.PopulateHosts([]*model.Host{{ID: "h1", HostName: "a.example.com"}})
	cache.PopulateProviders([]*model.Provider{{ID: "p1", Provider: "google"}})
	cache.PopulateUser(&model.User{ID: "u1", Email: "alice@x.com"})

	cache.InvalidateProviders()

	if _, ok := cache.ReadHosts(); !ok {
		t.Error("hosts region should survive provider invalidation")
	}
	if _, ok := cache.ReadProviders(); ok {
		t.Error("providers region should be invalidated")
	}
	if _, ok := cache.ReadUser(); !ok {
		t.Error("user region should survive provider invalidation")
	}
}

// 永続化（JSONラウンドトリップ）を経た後でも読み取れることを検証
func TestCache_ReadAfterSerializationRoundTrip(t *testing.T) {
	sess := newTestSession()
	cache := NewCache(sess)
	cache.PopulateUser(&model.User{ID: "u1", Email: "alice@x.com", Username: "alice"})
	cache.AppendPassport(&model.Passport{ID: "pp1", Provider: "local", Email: "alice@x.com"})

	// セッションストアへの保存と再読込をシミュレート
	buf, err := json.Marshal(sess.Data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var reloaded map[string]any
	if err := json.Unmarshal(buf, &reloaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	cache2 := NewCache(&model.Session{ID: "sess-1", Data: reloaded})
	user, ok := cache2.ReadUser()
	if !ok {
		t.Fatal("expected user hit after round trip")
	}
	if user.Username != "alice" {
		t.Errorf("username = %q, want alice", user.Username)
	}
	passports, ok := cache2.ReadPassports()
	if !ok || len(passports) != 1 {
		t.Fatalf("expected 1 passport, got %v", passports)
	}
}

// プロフィールが空でもIDを持つユーザーはpopulate→readで往復できることを検証
func TestCache_ReadUser_IDOnlyUserIsHit(t *testing.T) {
	cache := NewCache(newTestSession())
	cache.PopulateUser(&model.User{ID: "u-id-only"})

	user, ok := cache.ReadUser()
	if !ok {
		t.Fatal("expected hit for user identified only by ID")
	}
	if user.ID != "u-id-only" {
		t.Errorf("ID = %q, want u-id-only", user.ID)
	}
}

// IDを持たないデコード結果はミスとして扱われることを検証
func TestCache_ReadUser_MissingIDIsMiss(t *testing.T) {
	cache := NewCache(newTestSession())
	cache.PopulateUser(&model.User{Email: "no-id@example.com"})

	if _, ok := cache.ReadUser(); ok {
		t.Error("expected miss for user without ID")
	}
}

// 壊れたキャッシュ値はエラーではなくミスとして扱われることを検証
func TestCache_CorruptValueIsMiss(t *testing.T) {
	sess := newTestSession()
	sess.Data["auth"] = map[string]any{"user": "garbage"}

	cache := NewCache(sess)
	if _, ok := cache.ReadUser(); ok {
		t.Error("expected corrupt value to read as miss")
	}
}

// ClearAuthはユーザー・Passport・lastUriを削除し、hosts/providersを残すことを検証
func TestCache_ClearAuth(t *testing.T) {
	cache := NewCache(newTestSession())
	cache.PopulateHosts([]*model.Host{{ID: "h1", HostName: "a.example.com"}})
	cache.PopulateUser(&model.User{ID: "u1", Email: "alice@x.com"})
	cache.AppendPassport(&model.Passport{ID: "pp1", Provider: "google", Email: "alice@x.com"})
	cache.SetLastURI("/dashboard")

	cache.ClearAuth()

	if cache.Authenticated() {
		t.Error("expected unauthenticated after ClearAuth")
	}
	if _, ok := cache.ReadPassports(); ok {
		t.Error("expected passports cleared")
	}
	if _, ok := cache.LastURI(); ok {
		t.Error("expected lastUri cleared")
	}
	if _, ok := cache.ReadHosts(); !ok {
		t.Error("expected hosts region to remain")
	}
}

// lastUriの記録・取得・削除を検証
func TestCache_LastURI(t *testing.T) {
	cache := NewCache(newTestSession())

	if _, ok := cache.LastURI(); ok {
		t.Fatal("expected no lastUri initially")
	}

	cache.SetLastURI("/app/home")
	uri, ok := cache.LastURI()
	if !ok || uri != "/app/home" {
		t.Errorf("LastURI() = %q, %v", uri, ok)
	}

	cache.ClearLastURI()
	if _, ok := cache.LastURI(); ok {
		t.Error("expected lastUri cleared")
	}
}
