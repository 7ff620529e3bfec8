package sso

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/security"
)

// Hooks はストラテジーに依存しない認証フック。
// Verifyはベアラートークン検証、LocalLoginはローカル資格情報の照合に使われる。
type Hooks struct {
	Verify     func(ctx context.Context, token string) (*model.Passport, error)
	LocalLogin func(ctx context.Context, identifier, password string) (*model.Passport, error)
}

// Registry は設定済みプロバイダーから構築されたストラテジーの集合を保持する。
// Initで一括構築し、以降はストラテジー名で参照する。
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	hosts      []*model.Host
	hooks      Hooks

	guard        security.SSRFGuardService
	fetchTimeout time.Duration
	fetchMaxSize int64
}

// NewRegistry はRegistryを生成する。
// guardはアウトバウンド通信用のSSRF防止クライアントの生成に使われる。
func NewRegistry(guard security.SSRFGuardService, fetchTimeout time.Duration, fetchMaxSize int64) *Registry {
	return &Registry{
		strategies:   make(map[string]Strategy),
		guard:        guard,
		fetchTimeout: fetchTimeout,
		fetchMaxSize: fetchMaxSize,
	}
}

// Init はホストとプロバイダーの一覧からストラテジーを構築する。
// protocol=local/bearerのプロバイダーはフックで処理されるためストラテジーを持たない。
// エンドポイントURLはSSRF防止の事前検証を通す。不正なURLを持つプロバイダーは
// エラーとして報告し、登録全体を中断する。
func (r *Registry) Init(hosts []*model.Host, providers []*model.Provider, hooks Hooks) error {
	strategies := make(map[string]Strategy)

	for _, p := range providers {
		var s Strategy
		switch p.Protocol {
		case model.ProtocolLocal, model.ProtocolBearer:
			// フックで処理するためストラテジー不要
			continue
		case model.ProtocolOAuth, model.ProtocolOAuth2, model.ProtocolOpenID:
			if err := r.validateEndpoints(p, p.URL, p.URLValidate, p.URLProfile); err != nil {
				return err
			}
			s = NewOAuth2Strategy(p, r.newClient())
		case model.ProtocolCAS:
			if err := r.validateEndpoints(p, p.URL, p.URLValidate); err != nil {
				return err
			}
			s = NewCASStrategy(p, r.newClient())
		default:
			return fmt.Errorf("provider %s: unsupported protocol %q", p.Provider, p.Protocol)
		}

		if p.StrategyName == "" {
			return fmt.Errorf("provider %s: empty strategy name", p.Provider)
		}
		if _, exists := strategies[p.StrategyName]; exists {
			return fmt.Errorf("provider %s: duplicate strategy name %q", p.Provider, p.StrategyName)
		}
		strategies[p.StrategyName] = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = strategies
	r.hosts = hosts
	r.hooks = hooks
	return nil
}

// Register は単一のストラテジーを登録する。
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Authenticate は指定ストラテジーのログインURLを生成する。
// 未登録のストラテジー名はINVALID_PROVIDERを返す。
func (r *Registry) Authenticate(strategyName, state string) (string, error) {
	s, err := r.strategy(strategyName)
	if err != nil {
		return "", err
	}
	return s.LoginURL(state), nil
}

// Callback は指定ストラテジーのコールバック検証を実行する。
func (r *Registry) Callback(ctx context.Context, strategyName string, query url.Values) (*Profile, error) {
	s, err := r.strategy(strategyName)
	if err != nil {
		return nil, err
	}
	return s.Callback(ctx, query)
}

// Verify はベアラートークン検証フックを呼び出す。
// フック未設定はパスポートなしとして扱う。
func (r *Registry) Verify(ctx context.Context, token string) (*model.Passport, error) {
	r.mu.RLock()
	hook := r.hooks.Verify
	r.mu.RUnlock()
	if hook == nil {
		return nil, nil
	}
	return hook(ctx, token)
}

// LocalLogin はローカル資格情報の照合フックを呼び出す。
func (r *Registry) LocalLogin(ctx context.Context, identifier, password string) (*model.Passport, error) {
	r.mu.RLock()
	hook := r.hooks.LocalLogin
	r.mu.RUnlock()
	if hook == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return hook(ctx, identifier, password)
}

func (r *Registry) strategy(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, model.NewInvalidProviderError()
	}
	return s, nil
}

// newClient はアウトバウンド通信用のHTTPクライアントを生成する。
func (r *Registry) newClient() *http.Client {
	if r.guard == nil {
		return nil
	}
	return r.guard.NewSafeClient(r.fetchTimeout, r.fetchMaxSize)
}

// validateEndpoints はストラテジーが使用するエンドポイントURLを事前検証する。
func (r *Registry) validateEndpoints(p *model.Provider, urls ...string) error {
	if r.guard == nil {
		return nil
	}
	for _, u := range urls {
		if err := r.guard.ValidateURL(u); err != nil {
			return fmt.Errorf("provider %s: unsafe endpoint URL: %w", p.Provider, err)
		}
	}
	return nil
}
