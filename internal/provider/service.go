// Package provider は認証プロバイダーの登録と解決のドメインロジックを提供する。
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ssokit/internal/host"
	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/repository"
	"github.com/hitoshi/ssokit/internal/security"
	"github.com/hitoshi/ssokit/internal/session"
)

// Service はプロバイダーレジストリのサービス層。
// 公開向けの一覧は秘匿フィールドを落とした形で返し、
// セッションキャッシュ優先で読み込む。
type Service struct {
	providerRepo repository.ProviderRepository
	hostSvc      *host.Service
	guard        security.SSRFGuardService
	allowed      map[string]struct{}
}

// NewService はServiceの新しいインスタンスを生成する。
// guardがnilでない場合、プロバイダー登録時にエンドポイントURLを検証する。
func NewService(providerRepo repository.ProviderRepository, hostSvc *host.Service, guard security.SSRFGuardService) *Service {
	return &Service{
		providerRepo: providerRepo,
		hostSvc:      hostSvc,
		guard:        guard,
	}
}

// SetAllowedProviders は登録を許可するプロバイダー名の列挙集合を設定する。
// 大文字小文字は区別しない。空の場合は制限しない。
func (s *Service) SetAllowedProviders(names []string) {
	if len(names) == 0 {
		s.allowed = nil
		return
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	s.allowed = set
}

// ListProviders は指定ホストで利用可能なプロバイダー一覧を秘匿フィールドを
// 落とした形で返す。一覧はprovider昇順。cacheがnilでない場合はセッション
// キャッシュを先に読み、ミスした場合のみDBへ問い合わせて書き戻す。
func (s *Service) ListProviders(ctx context.Context, cache *session.Cache, hostName string) ([]*model.Provider, error) {
	normalized := model.NormalizeHostName(hostName)

	if cache != nil {
		if providers, ok := cache.ReadProviders(); ok {
			return providers, nil
		}
	}

	providers, err := s.providerRepo.List(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("プロバイダー一覧の取得に失敗しました: %w", err)
	}

	redacted := make([]*model.Provider, len(providers))
	for i, p := range providers {
		redacted[i] = p.Redacted()
	}

	if cache != nil {
		cache.PopulateProviders(redacted)
	}

	return redacted, nil
}

// ListDefinitions は登録済みの全プロバイダーを秘匿フィールドを含む完全な形で返す。
// フェデレーションストラテジーの初期化専用。外部に公開してはならない。
func (s *Service) ListDefinitions(ctx context.Context) ([]*model.Provider, error) {
	providers, err := s.providerRepo.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("プロバイダー一覧の取得に失敗しました: %w", err)
	}
	return providers, nil
}

// GetProvider はホスト・プロバイダー名・ストラテジー名でプロバイダーを解決する。
// hostNameが未登録の場合やプロバイダーが見つからない場合はエラーを返す。
// 返り値はclientSecretを含む完全なプロバイダー定義であり、呼び出し側は
// これを外部にそのまま公開してはならない。
func (s *Service) GetProvider(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName string) (*model.Provider, error) {
	if providerName == "" {
		return nil, model.NewInvalidRequestError("provider")
	}
	if strategyName == "" {
		return nil, model.NewInvalidRequestError("strategy")
	}

	normalizedHost := model.NormalizeHostName(hostName)
	if normalizedHost == "" {
		return nil, model.NewInvalidRequestError("host")
	}

	// ホストがレジストリに存在することを先に確認する
	if _, err := s.hostSvc.GetHost(ctx, cache, normalizedHost); err != nil {
		return nil, err
	}

	criteria := repository.ProviderCriteria{
		HostName: normalizedHost,
		Provider: strings.ToLower(strings.TrimSpace(providerName)),
		Name:     strings.TrimSpace(strategyName),
	}

	p, err := s.providerRepo.FindOne(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("プロバイダーの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewInvalidProviderError()
	}

	return p, nil
}

// AddProvider はプロバイダーを登録する。(provider, type) をキーに
// 既存の定義は上書き更新される。プロバイダー名は許可集合が設定されて
// いる場合その集合に属さなければならない。hostsリストはホストレジストリに
// 対して検証され、未登録のホスト名は黙って除外される。
// 登録後はセッションキャッシュのプロバイダー領域を無効化する。
func (s *Service) AddProvider(ctx context.Context, cache *session.Cache, p *model.Provider) (*model.Provider, error) {
	if p == nil {
		return nil, model.NewInvalidRequestError("provider")
	}

	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	if p.Provider == "" {
		return nil, model.NewInvalidRequestError("provider")
	}
	if s.allowed != nil {
		if _, ok := s.allowed[p.Provider]; !ok {
			return nil, model.NewValidationError("provider")
		}
	}
	if !model.ValidProtocol(string(p.Protocol)) {
		return nil, model.NewValidationError("protocol")
	}
	if p.Type == "" {
		p.Type = model.AuthTypeNone
	}
	if !model.ValidAuthType(string(p.Type)) {
		return nil, model.NewValidationError("type")
	}

	if err := s.validateEndpoints(p); err != nil {
		return nil, err
	}

	validHosts, err := s.hostSvc.ValidateHosts(ctx, cache, p.Hosts)
	if err != nil {
		return nil, err
	}
	p.Hosts = validHosts

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	saved, err := s.providerRepo.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("プロバイダーの登録に失敗しました: %w", err)
	}

	if cache != nil {
		cache.InvalidateProviders()
	}

	return saved, nil
}

// validateEndpoints は外部IdPのエンドポイントURLを登録前に検証する。
// ローカル・ベアラープロバイダーは外部エンドポイントを持たないため対象外。
func (s *Service) validateEndpoints(p *model.Provider) error {
	if s.guard == nil {
		return nil
	}
	if p.Protocol == model.ProtocolLocal || p.Protocol == model.ProtocolBearer {
		return nil
	}
	for _, u := range []string{p.URL, p.URLValidate, p.URLProfile} {
		if u == "" {
			continue
		}
		if err := s.guard.ValidateURL(u); err != nil {
			return model.NewValidationError("url")
		}
	}
	return nil
}
