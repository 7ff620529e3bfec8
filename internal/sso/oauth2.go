package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/ssokit/internal/model"
)

// OAuth2Strategy はOAuth 2.0認可コードフローによる認証を提供する。
// protocol=oauth/oauth2/openidのプロバイダーで使用される。
// エンドポイントはプロバイダー定義のurl（認可）/url_validate（トークン交換）/
// url_profile（プロフィール取得）から取る。
type OAuth2Strategy struct {
	provider *model.Provider
	client   *http.Client
}

// NewOAuth2Strategy はOAuth2Strategyを生成する。
// clientにはSSRF防止機能付きのHTTPクライアントを渡す。
func NewOAuth2Strategy(p *model.Provider, client *http.Client) *OAuth2Strategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuth2Strategy{provider: p, client: client}
}

// Name はストラテジー名を返す。
func (s *OAuth2Strategy) Name() string {
	return s.provider.StrategyName
}

// LoginURL は認可エンドポイントへのリダイレクトURLを生成する。
func (s *OAuth2Strategy) LoginURL(state string) string {
	params := url.Values{
		"client_id":     {s.provider.ClientID},
		"redirect_uri":  {s.provider.URLCallback},
		"response_type": {"code"},
		"state":         {state},
	}
	if len(s.provider.Scope) > 0 {
		params.Set("scope", strings.Join(s.provider.Scope, " "))
	}
	return s.provider.URL + "?" + params.Encode()
}

// oauth2TokenResponse はトークンエンドポイントのレスポンス。
type oauth2TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Callback は認可コードをアクセストークンに交換し、プロフィールを取得する。
// IdPがerrorパラメータを返した場合やレスポンスが不正な場合は
// UPSTREAM_PROVIDER_ERRORを返す。
func (s *OAuth2Strategy) Callback(ctx context.Context, query url.Values) (*Profile, error) {
	if errParam := query.Get("error"); errParam != "" {
		return nil, model.NewUpstreamProviderError(errParam)
	}
	code := query.Get("code")
	if code == "" {
		return nil, model.NewUpstreamProviderError("missing authorization code")
	}

	tokenResp, err := s.exchangeToken(ctx, code)
	if err != nil {
		return nil, model.NewUpstreamProviderError(err.Error())
	}

	profile, err := s.fetchProfile(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, model.NewUpstreamProviderError(err.Error())
	}

	profile.AccessToken = tokenResp.AccessToken
	if tokenResp.ExpiresIn > 0 {
		profile.TokenExpiresIn = strconv.Itoa(tokenResp.ExpiresIn)
	}
	return profile, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (s *OAuth2Strategy) exchangeToken(ctx context.Context, code string) (*oauth2TokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {s.provider.ClientID},
		"client_secret": {s.provider.ClientSecret},
		"redirect_uri":  {s.provider.URLCallback},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.URLValidate, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp oauth2TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchProfile はアクセストークンでプロフィールを取得し正規化する。
func (s *OAuth2Strategy) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.provider.URLProfile, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	profile := profileFromClaims(claims)
	if profile.Identifier == "" {
		return nil, fmt.Errorf("empty identifier in profile response")
	}

	return profile, nil
}

// compile-time interface check
var _ Strategy = (*OAuth2Strategy)(nil)
