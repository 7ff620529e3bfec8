package sso

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/ssokit/internal/model"
)

// CASStrategy はCAS 2.0プロトコルによる認証を提供する。
// ログイン時はurl（CASログインエンドポイント）へリダイレクトし、
// コールバックで受け取ったチケットをurl_validate（serviceValidate）で検証する。
type CASStrategy struct {
	provider *model.Provider
	client   *http.Client
}

// NewCASStrategy はCASStrategyを生成する。
// clientにはSSRF防止機能付きのHTTPクライアントを渡す。
func NewCASStrategy(p *model.Provider, client *http.Client) *CASStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &CASStrategy{provider: p, client: client}
}

// Name はストラテジー名を返す。
func (s *CASStrategy) Name() string {
	return s.provider.StrategyName
}

// LoginURL はCASログインエンドポイントへのリダイレクトURLを生成する。
// CASプロトコルはstateを持たないため、stateはserviceパラメータに畳み込まず破棄する。
func (s *CASStrategy) LoginURL(state string) string {
	params := url.Values{
		"service": {s.provider.URLCallback},
	}
	return s.provider.URL + "?" + params.Encode()
}

// casServiceResponse はCAS 2.0 serviceValidateエンドポイントのレスポンス。
type casServiceResponse struct {
	XMLName xml.Name    `xml:"serviceResponse"`
	Success *casSuccess `xml:"authenticationSuccess"`
	Failure *casFailure `xml:"authenticationFailure"`
}

type casSuccess struct {
	User       string        `xml:"user"`
	Attributes casAttributes `xml:"attributes"`
}

type casAttributes struct {
	Email       string `xml:"email"`
	NameDisplay string `xml:"displayName"`
	NameFirst   string `xml:"firstName"`
	NameLast    string `xml:"lastName"`
}

type casFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Callback はコールバックのチケットをserviceValidateエンドポイントで検証する。
// チケットの欠落、検証失敗、レスポンス不正はUPSTREAM_PROVIDER_ERRORを返す。
func (s *CASStrategy) Callback(ctx context.Context, query url.Values) (*Profile, error) {
	ticket := query.Get("ticket")
	if ticket == "" {
		return nil, model.NewUpstreamProviderError("missing ticket")
	}

	body, err := s.validateTicket(ctx, ticket)
	if err != nil {
		return nil, model.NewUpstreamProviderError(err.Error())
	}

	var serviceResp casServiceResponse
	if err := xml.Unmarshal(body, &serviceResp); err != nil {
		return nil, model.NewUpstreamProviderError(fmt.Sprintf("failed to parse validate response: %v", err))
	}

	if serviceResp.Failure != nil {
		return nil, model.NewUpstreamProviderError(fmt.Sprintf("ticket validation failed: %s", serviceResp.Failure.Code))
	}
	if serviceResp.Success == nil || serviceResp.Success.User == "" {
		return nil, model.NewUpstreamProviderError("empty user in validate response")
	}

	success := serviceResp.Success
	return &Profile{
		Identifier:  success.User,
		Username:    success.User,
		Email:       success.Attributes.Email,
		NameDisplay: success.Attributes.NameDisplay,
		NameFirst:   success.Attributes.NameFirst,
		NameLast:    success.Attributes.NameLast,
		AccessToken: ticket,
	}, nil
}

// validateTicket はserviceValidateエンドポイントへチケット検証リクエストを送る。
func (s *CASStrategy) validateTicket(ctx context.Context, ticket string) ([]byte, error) {
	params := url.Values{
		"service": {s.provider.URLCallback},
		"ticket":  {ticket},
	}
	validateURL := s.provider.URLValidate + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create validate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read validate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket validation failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// compile-time interface check
var _ Strategy = (*CASStrategy)(nil)
