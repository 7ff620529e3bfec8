// Package passport はPassport（連携済みアイデンティティ）のドメインロジックを提供する。
package passport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ssokit/internal/directory"
	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/password"
	"github.com/hitoshi/ssokit/internal/repository"
)

// Credentials はPassport検索条件と平文パスワードの組。
// 平文パスワードはストレージ検索条件には決して含めず、
// 取得後にハッシュ照合として検証する。
type Credentials struct {
	Provider   string
	Protocol   string
	Identifier string
	Email      string
	Username   string
	Password   string // 平文。ローカル認証のみ
}

// Service はPassportのサービス層。
// Passportの検索・照合・ユーザーへのリンクのビジネスロジックを提供する。
type Service struct {
	passportRepo repository.PassportRepository
	directory    *directory.Service
	hasher       *password.Hasher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(passportRepo repository.PassportRepository, dir *directory.Service, hasher *password.Hasher) *Service {
	return &Service{
		passportRepo: passportRepo,
		directory:    dir,
		hasher:       hasher,
	}
}

// FindPassport は条件に一致するPassportを返す。
// Passwordが指定されている場合は、検索条件から外した上で
// 取得したPassportの保存ハッシュと照合し、不一致ならINVALID_CREDENTIALSを返す。
// 見つからない場合はnilを返す（エラーにはしない）。
func (s *Service) FindPassport(ctx context.Context, creds Credentials) (*model.Passport, error) {
	criteria := repository.PassportCriteria{
		Provider:   strings.ToLower(strings.TrimSpace(creds.Provider)),
		Protocol:   creds.Protocol,
		Identifier: strings.TrimSpace(creds.Identifier),
		Email:      strings.ToLower(strings.TrimSpace(creds.Email)),
		Username:   strings.TrimSpace(creds.Username),
	}
	if criteria.Provider == "" && criteria.Identifier == "" && criteria.Email == "" && criteria.Username == "" {
		return nil, model.NewInvalidRequestError("passport")
	}

	p, err := s.passportRepo.FindOne(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("Passportの検索に失敗しました: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	if creds.Password != "" {
		ok, err := s.hasher.Verify(creds.Password, p.Password)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.NewInvalidCredentialsError()
		}
	}

	return p, nil
}

// FindByAccessToken はアクセストークンでPassportを検索する。見つからない場合はnilを返す。
func (s *Service) FindByAccessToken(ctx context.Context, token string) (*model.Passport, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.NewInvalidRequestError("accessToken")
	}

	p, err := s.passportRepo.FindByAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("Passportの検索に失敗しました: %w", err)
	}
	return p, nil
}

// AddPassport はPassportをユーザーにリンクする。
//
//  1. userが未指定の場合、Passportのusername/emailでユーザーをfind-or-createする。
//  2. 一意キー（ローカル型はprovider+email、フェデレーション型はprovider+identifier）で
//     既存Passportを検索する。
//  3. 既存Passportが同一ユーザーのものなら、アクセストークンが変わっていれば更新して返す。
//     別のユーザーのものならLINK_CONFLICTを返す。
//  4. 存在しなければ検証の上で新規作成する。ローカル型は平文パスワードを
//     検証（最小8文字）してからハッシュ化して保存する。
func (s *Service) AddPassport(ctx context.Context, p *model.Passport, user *model.User) (*model.Passport, error) {
	if p == nil {
		return nil, model.NewInvalidRequestError("passport")
	}

	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.Identifier = strings.TrimSpace(p.Identifier)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Username = strings.TrimSpace(p.Username)
	if p.Language == "" {
		p.Language = model.DefaultLanguage
	}

	if user == nil {
		resolved, err := s.directory.FindOrCreateUser(ctx, &model.User{
			Username: p.Username,
			Email:    p.Email,
		})
		if err != nil {
			return nil, err
		}
		user = resolved
	}
	p.UserID = user.ID

	// 一意キーで既存Passportを検索
	criteria := repository.PassportCriteria{Provider: p.Provider}
	if p.IsLocal() {
		if p.Email == "" {
			return nil, model.NewValidationError("email")
		}
		criteria.Email = p.Email
	} else {
		if p.Identifier == "" {
			return nil, model.NewValidationError("identifier")
		}
		criteria.Identifier = p.Identifier
	}

	existing, err := s.passportRepo.FindOne(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("Passportの検索に失敗しました: %w", err)
	}
	if existing != nil {
		if existing.UserID != user.ID {
			return nil, model.NewLinkConflictError()
		}
		if p.AccessToken != "" && p.AccessToken != existing.AccessToken {
			if err := s.passportRepo.UpdateAccessToken(ctx, existing.ID, p.AccessToken); err != nil {
				return nil, fmt.Errorf("アクセストークンの更新に失敗しました: %w", err)
			}
			existing.AccessToken = p.AccessToken
		}
		return existing, nil
	}

	// 新規作成
	if p.IsLocal() {
		if len(p.Password) < model.PasswordMinLength {
			return nil, model.NewValidationError("password")
		}
		hashed, err := s.hasher.Hash(p.Password)
		if err != nil {
			return nil, err
		}
		p.Password = hashed
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	// ストアの一意制約違反はLINK_CONFLICTとして返る
	if err := s.passportRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}
