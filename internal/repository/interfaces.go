// Package repository はデータ永続化のインターフェースを定義する。
//
// 本コアは特定のストレージエンジンに依存しない。検索条件は等価・集合包含・
// OR結合のみを必要とし、各実装はfind / find-one / find-or-create / update
// をこの4コレクション（hosts, providers, users, passports）に対して提供する。
package repository

import (
	"context"

	"github.com/hitoshi/ssokit/internal/model"
)

// HostRepository はホストデータの永続化インターフェース。
type HostRepository interface {
	// FindByEnvironment は指定環境で有効な全ホストを返す。順序は未定義。
	FindByEnvironment(ctx context.Context, environment string) ([]*model.Host, error)

	// FindByName は正規化済みホスト名と環境でホストを検索する。
	// 見つからない場合はnilを返す。
	FindByName(ctx context.Context, hostName, environment string) (*model.Host, error)

	// Upsert は正規化済みホスト名をキーに冪等なupsertを行う。
	Upsert(ctx context.Context, host *model.Host) (*model.Host, error)
}

// ProviderCriteria はプロバイダー検索条件。空のフィールドは無視される。
type ProviderCriteria struct {
	HostName string // プロバイダーのhosts集合に含まれること（集合包含）
	Provider string // プロバイダー名の完全一致
	Name     string // ストラテジー名の完全一致
	Type     string // 認可方式の完全一致（任意）
}

// ProviderRepository はプロバイダーデータの永続化インターフェース。
type ProviderRepository interface {
	// List はプロバイダー一覧をprovider昇順で返す。
	// hostNameが空でない場合、hosts集合に含むものに絞り込む。
	List(ctx context.Context, hostName string) ([]*model.Provider, error)

	// FindOne は条件に一致する1件を返す。見つからない場合はnilを返す。
	FindOne(ctx context.Context, criteria ProviderCriteria) (*model.Provider, error)

	// Upsert は (provider, type) をキーに冪等なupsertを行う。
	Upsert(ctx context.Context, provider *model.Provider) (*model.Provider, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsernameOrEmail はusernameまたはemailのOR検索を行う。
	// 空のフィールドは条件から除外する。見つからない場合はnilを返す。
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)

	// FindByHost は指定ホストに関連付けられた全ユーザーを返す。
	FindByHost(ctx context.Context, hostName string) ([]*model.User, error)

	// FindByHostAndEmail はホストとemailでユーザーを検索する。見つからない場合はnilを返す。
	FindByHostAndEmail(ctx context.Context, hostName, email string) (*model.User, error)

	// Create はユーザーを作成する。username/emailの一意制約違反は
	// LINK_CONFLICTとして表面化する。
	Create(ctx context.Context, user *model.User) error
}

// PassportCriteria はPassport検索条件。空のフィールドは無視される。
// 平文パスワードはこの条件に含めない。サービス層で事前に剥がし、
// ハッシュ照合として別段で検証する。
type PassportCriteria struct {
	Provider   string
	Protocol   string
	Identifier string
	Email      string
	Username   string
}

// PassportRepository はPassportデータの永続化インターフェース。
type PassportRepository interface {
	// FindOne は条件に一致する1件を返す。見つからない場合はnilを返す。
	FindOne(ctx context.Context, criteria PassportCriteria) (*model.Passport, error)

	// FindByAccessToken はアクセストークンでPassportを検索する。見つからない場合はnilを返す。
	FindByAccessToken(ctx context.Context, token string) (*model.Passport, error)

	// Create はPassportを作成する。一意キー（フェデレーション型は
	// provider+identifier、ローカル型はprovider+email）の制約違反は
	// LINK_CONFLICTとして表面化する。競合時の整合性はストアの
	// 一意制約が最終的な砦となる。
	Create(ctx context.Context, passport *model.Passport) error

	// UpdateAccessToken はアクセストークンのみを更新する。
	UpdateAccessToken(ctx context.Context, id, accessToken string) error
}

// GroupRepository は権限グループの永続化インターフェース。
type GroupRepository interface {
	// List は全グループをguid昇順で返す。
	List(ctx context.Context) ([]*model.Group, error)

	// EnsureBuiltins は組み込みグループ（superuser/admin/guest）を冪等に登録する。
	EnsureBuiltins(ctx context.Context) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションは不透明なキーバリューバッグとして保存される。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Save はセッションのデータバッグとユーザー参照を上書き保存する。
	// 同一セッションへの並行書き込みはlast-writer-winsとする。
	Save(ctx context.Context, session *model.Session) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
