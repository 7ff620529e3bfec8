package sso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/ssokit/internal/model"
)

func testCASProvider(loginURL, validateURL string) *model.Provider {
	return &model.Provider{
		ID:           "prov-cas",
		Name:         "corp-cas",
		Provider:     "corp",
		Protocol:     model.ProtocolCAS,
		Type:         model.AuthTypeNone,
		URL:          loginURL,
		URLValidate:  validateURL,
		URLCallback:  "https://sso.example.com/auth/corp-cas/callback",
		StrategyName: "corp-cas",
	}
}

const casSuccessXML = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess>
    <cas:user>taro.yamada</cas:user>
    <cas:attributes>
      <cas:email>taro@example.com</cas:email>
      <cas:displayName>Taro Yamada</cas:displayName>
      <cas:firstName>Taro</cas:firstName>
      <cas:lastName>Yamada</cas:lastName>
    </cas:attributes>
  </cas:authenticationSuccess>
</cas:serviceResponse>`

const casFailureXML = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationFailure code="INVALID_TICKET">
    Ticket ST-12345 not recognized
  </cas:authenticationFailure>
</cas:serviceResponse>`

// TestCASStrategy_LoginURL はCASログインURLにserviceパラメータが含まれることを検証する。
func TestCASStrategy_LoginURL(t *testing.T) {
	p := testCASProvider("https://cas.example.com/login", "https://cas.example.com/serviceValidate")
	strategy := NewCASStrategy(p, nil)

	loginURL := strategy.LoginURL("ignored-state")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	if !strings.HasPrefix(loginURL, "https://cas.example.com/login?") {
		t.Errorf("login URL should start with CAS login endpoint: %s", loginURL)
	}
	if got := parsed.Query().Get("service"); got != "https://sso.example.com/auth/corp-cas/callback" {
		t.Errorf("service = %q", got)
	}
}

// TestCASStrategy_Callback_Success はチケット検証の成功パスを検証する。
func TestCASStrategy_Callback_Success(t *testing.T) {
	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ticket"); got != "ST-12345" {
			t.Errorf("ticket = %q, want ST-12345", got)
		}
		if got := r.URL.Query().Get("service"); got != "https://sso.example.com/auth/corp-cas/callback" {
			t.Errorf("service = %q", got)
		}
		w.Write([]byte(casSuccessXML))
	}))
	defer validateServer.Close()

	p := testCASProvider("https://cas.example.com/login", validateServer.URL)
	strategy := NewCASStrategy(p, nil)

	profile, err := strategy.Callback(context.Background(), url.Values{"ticket": {"ST-12345"}})
	if err != nil {
		t.Fatalf("Callback failed: %v", err)
	}

	if profile.Identifier != "taro.yamada" {
		t.Errorf("Identifier = %q, want taro.yamada", profile.Identifier)
	}
	if profile.Username != "taro.yamada" {
		t.Errorf("Username = %q", profile.Username)
	}
	if profile.Email != "taro@example.com" {
		t.Errorf("Email = %q", profile.Email)
	}
	if profile.NameDisplay != "Taro Yamada" {
		t.Errorf("NameDisplay = %q", profile.NameDisplay)
	}
	if profile.AccessToken != "ST-12345" {
		t.Errorf("AccessToken = %q, want ST-12345", profile.AccessToken)
	}
}

// TestCASStrategy_Callback_Failure は検証失敗レスポンスがUPSTREAM_PROVIDER_ERRORになることを検証する。
func TestCASStrategy_Callback_Failure(t *testing.T) {
	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(casFailureXML))
	}))
	defer validateServer.Close()

	p := testCASProvider("https://cas.example.com/login", validateServer.URL)
	strategy := NewCASStrategy(p, nil)

	_, err := strategy.Callback(context.Background(), url.Values{"ticket": {"ST-bad"}})
	if !model.HasErrorCode(err, model.ErrCodeUpstreamProviderError) {
		t.Errorf("expected UPSTREAM_PROVIDER_ERROR, got %v", err)
	}
	apiErr, _ := model.AsAPIError(err)
	if !strings.Contains(apiErr.Message, "INVALID_TICKET") {
		t.Errorf("error should carry failure code: %v", apiErr.Message)
	}
}

// TestCASStrategy_Callback_MissingTicket はチケット欠落を検証する。
func TestCASStrategy_Callback_MissingTicket(t *testing.T) {
	p := testCASProvider("https://cas.example.com/login", "https://cas.example.com/serviceValidate")
	strategy := NewCASStrategy(p, nil)

	_, err := strategy.Callback(context.Background(), url.Values{})
	if !model.HasErrorCode(err, model.ErrCodeUpstreamProviderError) {
		t.Errorf("expected UPSTREAM_PROVIDER_ERROR, got %v", err)
	}
}

// TestCASStrategy_Callback_MalformedXML は不正なXML応答を検証する。
func TestCASStrategy_Callback_MalformedXML(t *testing.T) {
	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer validateServer.Close()

	p := testCASProvider("https://cas.example.com/login", validateServer.URL)
	strategy := NewCASStrategy(p, nil)

	_, err := strategy.Callback(context.Background(), url.Values{"ticket": {"ST-1"}})
	if !model.HasErrorCode(err, model.ErrCodeUpstreamProviderError) {
		t.Errorf("expected UPSTREAM_PROVIDER_ERROR, got %v", err)
	}
}
