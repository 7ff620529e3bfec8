// Package host はSSO参加ホストの登録と解決のドメインロジックを提供する。
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/repository"
	"github.com/hitoshi/ssokit/internal/session"
)

// Service はホストレジストリのサービス層。
// ホスト一覧の取得、ホスト名の解決、ホスト登録のビジネスロジックを提供する。
// 一覧はセッションキャッシュ優先で読み、ミス時にDBから取得してキャッシュに書き戻す。
type Service struct {
	hostRepo    repository.HostRepository
	environment string
}

// NewService はServiceの新しいインスタンスを生成する。
// environmentは現在の実行環境（例: "production"）を指定し、
// environmentsに含まれるホストのみが解決対象になる。
func NewService(hostRepo repository.HostRepository, environment string) *Service {
	return &Service{
		hostRepo:    hostRepo,
		environment: environment,
	}
}

// ListHosts は現在の環境でアクティブなホスト一覧を返す。
// cacheがnilでない場合はセッションキャッシュを先に読み、
// ミスした場合のみDBへ問い合わせて結果をキャッシュへ書き戻す。
func (s *Service) ListHosts(ctx context.Context, cache *session.Cache) ([]*model.Host, error) {
	if cache != nil {
		if hosts, ok := cache.ReadHosts(); ok {
			return hosts, nil
		}
	}

	hosts, err := s.hostRepo.FindByEnvironment(ctx, s.environment)
	if err != nil {
		return nil, fmt.Errorf("ホスト一覧の取得に失敗しました: %w", err)
	}

	if cache != nil {
		cache.PopulateHosts(hosts)
	}

	return hosts, nil
}

// GetHost はホスト名でホストを解決する。
// ホスト名は小文字に正規化して比較し、現在の環境でアクティブなものだけを対象とする。
// 未登録のホスト名の場合はINVALID_HOSTエラーを返す。
func (s *Service) GetHost(ctx context.Context, cache *session.Cache, hostName string) (*model.Host, error) {
	normalized := model.NormalizeHostName(hostName)
	if normalized == "" {
		return nil, model.NewInvalidRequestError("host")
	}

	// キャッシュ済み一覧があればそこから解決する。
	// 一覧に無いホストは未登録として扱う（セッション単位の古さは許容）。
	if cache != nil {
		if hosts, ok := cache.ReadHosts(); ok {
			for _, h := range hosts {
				if model.NormalizeHostName(h.HostName) == normalized {
					return h, nil
				}
			}
			return nil, model.NewInvalidHostError()
		}
	}

	h, err := s.hostRepo.FindByName(ctx, normalized, s.environment)
	if err != nil {
		return nil, fmt.Errorf("ホストの解決に失敗しました: %w", err)
	}
	if h == nil {
		return nil, model.NewInvalidHostError()
	}

	return h, nil
}

// AddHost はホストを登録する。既存の同名ホストは上書き更新される。
// 登録後はセッションキャッシュのホスト領域を無効化し、次回読み取りで再取得させる。
func (s *Service) AddHost(ctx context.Context, cache *session.Cache, h *model.Host) (*model.Host, error) {
	if h == nil {
		return nil, model.NewInvalidRequestError("host")
	}

	h.HostName = model.NormalizeHostName(h.HostName)
	if h.HostName == "" {
		return nil, model.NewInvalidRequestError("hostName")
	}

	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if len(h.Environments) == 0 {
		h.Environments = []string{s.environment}
	}
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	saved, err := s.hostRepo.Upsert(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("ホストの登録に失敗しました: %w", err)
	}

	if cache != nil {
		cache.InvalidateHosts()
	}

	return saved, nil
}

// ValidateHosts はホスト名のリストをレジストリに対して検証し、
// 登録済みのものだけを正規化して返す。空のリストは空のまま返る。
func (s *Service) ValidateHosts(ctx context.Context, cache *session.Cache, hostNames []string) ([]string, error) {
	if len(hostNames) == 0 {
		return nil, nil
	}

	hosts, err := s.ListHosts(ctx, cache)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		known[model.NormalizeHostName(h.HostName)] = struct{}{}
	}

	var valid []string
	for _, name := range hostNames {
		normalized := model.NormalizeHostName(name)
		if normalized == "" {
			continue
		}
		if _, ok := known[normalized]; ok {
			valid = append(valid, normalized)
		}
	}

	return valid, nil
}
