// Package model はドメインモデルを定義する。
package model

import "time"

// User は複数のPassportを束ねる論理ユーザーを表す。
// usernameとemailは少なくとも一方が存在しなければならない。
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"` // 任意、3〜25文字、一意
	Email    string   `json:"email"`              // 一意
	Groups   []string `json:"groups"`             // 未指定の場合は ["guest"]
	Hosts    []string `json:"hosts"`              // ユーザーが関連付けられたホスト

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UsernameMinLength / UsernameMaxLength はusernameの長さ制約。
const (
	UsernameMinLength = 3
	UsernameMaxLength = 25
)

// 組み込みグループ名。
const (
	SuperuserGroupName = "superuser"
	AdminGroupName     = "admin"
	GuestGroupName     = "guest"
)

// DefaultGroup は所属グループ未指定時に割り当てるグループ名。
const DefaultGroup = GuestGroupName

// Group はユーザーの権限グループを表す。
// superuser=0, admin=1, guest=2 の3グループが組み込みで定義される。
type Group struct {
	ID          string            `json:"id"`
	GUID        int               `json:"guid"`
	GroupName   string            `json:"groupName"`
	DisplayName map[string]string `json:"groupNameDisplay,omitempty"` // 言語コード → 表示名
	Hosts       []string          `json:"hosts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// BuiltinGroups は組み込みグループの定義。
// GUIDが小さいほど強い権限を持つ。
var BuiltinGroups = []Group{
	{GUID: 0, GroupName: SuperuserGroupName, DisplayName: map[string]string{"en": "Superuser", "ja": "特権管理者"}},
	{GUID: 1, GroupName: AdminGroupName, DisplayName: map[string]string{"en": "Administrator", "ja": "管理者"}},
	{GUID: 2, GroupName: GuestGroupName, DisplayName: map[string]string{"en": "Guest", "ja": "ゲスト"}},
}

// InGroup はユーザーが指定グループに所属しているかを返す。
func (u *User) InGroup(groupName string) bool {
	for _, g := range u.Groups {
		if g == groupName {
			return true
		}
	}
	return false
}
