// Package directory はユーザーディレクトリのドメインロジックを提供する。
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/repository"
	"github.com/hitoshi/ssokit/internal/session"
)

// Service はユーザーディレクトリのサービス層。
// usernameまたはemailをキーにユーザーを検索し、存在しない場合は作成する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// FindOrCreateUser はusernameまたはemailのOR検索でユーザーを探し、
// 見つからなければ作成する。既存ユーザーが見つかった場合、引数の
// その他の属性は無視される（上書きしない）。
// usernameとemailがどちらも空の場合はINVALID_REQUESTを返す。
// 所属グループが未指定の場合は guest が割り当てられる。
func (s *Service) FindOrCreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if u == nil {
		return nil, model.NewInvalidRequestError("user")
	}

	username := strings.TrimSpace(u.Username)
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if username == "" && email == "" {
		return nil, model.NewInvalidRequestError("username")
	}

	existing, err := s.userRepo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	if username != "" {
		if len(username) < model.UsernameMinLength || len(username) > model.UsernameMaxLength {
			return nil, model.NewValidationError("username")
		}
	}
	if email != "" && !model.ValidEmail(email) {
		return nil, model.NewValidationError("email")
	}

	created := &model.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Groups:   u.Groups,
		Hosts:    u.Hosts,
	}
	if len(created.Groups) == 0 {
		created.Groups = []string{model.DefaultGroup}
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.userRepo.Create(ctx, created); err != nil {
		return nil, err
	}

	return created, nil
}

// GetUser はキャッシュ優先でセッションのユーザーを返す。
// キャッシュミス時はuserIDでDBから取得してキャッシュへ書き戻す。
// ユーザーが存在しない場合はNOT_FOUNDを返す。
func (s *Service) GetUser(ctx context.Context, cache *session.Cache, userID string) (*model.User, error) {
	if cache != nil {
		if user, ok := cache.ReadUser(); ok {
			return user, nil
		}
	}

	if userID == "" {
		return nil, model.NewNotFoundError("user")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("user")
	}

	if cache != nil {
		cache.PopulateUser(user)
	}

	return user, nil
}

// GetUsers は指定ホストに関連付けられた全ユーザーを返す。
func (s *Service) GetUsers(ctx context.Context, hostName string) ([]*model.User, error) {
	normalized := model.NormalizeHostName(hostName)
	if normalized == "" {
		return nil, model.NewInvalidRequestError("host")
	}

	users, err := s.userRepo.FindByHost(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	return users, nil
}

// GetUserByEmail はホストとemailでユーザーを検索する。見つからない場合はNOT_FOUNDを返す。
func (s *Service) GetUserByEmail(ctx context.Context, hostName, email string) (*model.User, error) {
	normalized := model.NormalizeHostName(hostName)
	if normalized == "" {
		return nil, model.NewInvalidRequestError("host")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, model.NewInvalidRequestError("email")
	}

	user, err := s.userRepo.FindByHostAndEmail(ctx, normalized, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("user")
	}

	return user, nil
}

// ClearUserCache はセッションキャッシュのユーザー領域を無効化する。
// 権限グループの変更後など、次回アクセス時に最新のユーザーを読み直させたい場合に使う。
func (s *Service) ClearUserCache(cache *session.Cache) {
	if cache != nil {
		cache.InvalidateUser()
	}
}
