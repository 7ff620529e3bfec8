package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/passport"
	"github.com/hitoshi/ssokit/internal/security"
	"github.com/hitoshi/ssokit/internal/session"
)

// FlowState は認証フローの状態。
type FlowState string

const (
	StateAnonymous                FlowState = "ANONYMOUS"
	StateRedirectedToProvider     FlowState = "REDIRECTED_TO_PROVIDER"
	StateProviderCallbackReceived FlowState = "PROVIDER_CALLBACK_RECEIVED"
	StateLinked                   FlowState = "LINKED"
	StateSessionEstablished       FlowState = "SESSION_ESTABLISHED"
	StateRejected                 FlowState = "REJECTED"
)

// ProviderResolver はホストに対するプロバイダー解決を提供する。
type ProviderResolver interface {
	GetProvider(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName string) (*model.Provider, error)
}

// PassportLinker はパスポートの検索とリンクを提供する。
type PassportLinker interface {
	FindPassport(ctx context.Context, creds passport.Credentials) (*model.Passport, error)
	FindByAccessToken(ctx context.Context, token string) (*model.Passport, error)
	AddPassport(ctx context.Context, p *model.Passport, user *model.User) (*model.Passport, error)
}

// UserResolver は認証済みユーザーの読み込みを提供する。
type UserResolver interface {
	GetUser(ctx context.Context, cache *session.Cache, userID string) (*model.User, error)
}

// LoginMetrics は認証結果のメトリクス記録を提供する。
type LoginMetrics interface {
	RecordLogin(provider, protocol, outcome string)
	RecordSessionEstablished()
	RecordLogout()
}

// RedirectResult はログイン開始時のリダイレクト先。
// Localがtrueの場合は外部IdPではなくローカルログインフォームへ誘導する。
type RedirectResult struct {
	Location string
	Local    bool
	State    string
	Flow     FlowState
}

// SessionResult は確立されたセッションの内容。
type SessionResult struct {
	User      *model.User
	Passport  *model.Passport
	ReturnURI string
	Flow      FlowState
}

// Service は認証フロー全体を調整するオーケストレーター。
// ホスト解決、プロバイダー解決、ストラテジー実行、パスポートリンク、
// セッションキャッシュへの書き込みを1つの線形フローとしてつなぐ。
type Service struct {
	providers ProviderResolver
	passports PassportLinker
	directory UserResolver
	registry  *Registry
	sanitizer security.ProfileSanitizerService
	logger    *slog.Logger
	metrics   LoginMetrics
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(providers ProviderResolver, passports PassportLinker, directory UserResolver, registry *Registry, sanitizer security.ProfileSanitizerService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		providers: providers,
		passports: passports,
		directory: directory,
		registry:  registry,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// SetMetrics はメトリクス収集を有効化する。nilのままなら記録しない。
func (s *Service) SetMetrics(m LoginMetrics) {
	s.metrics = m
}

func (s *Service) recordLogin(provider, protocol, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(provider, protocol, outcome)
	}
}

// Hooks はこのオーケストレーターをRegistry.Initに渡すためのフックに変換する。
func (s *Service) Hooks() Hooks {
	return Hooks{
		Verify: func(ctx context.Context, token string) (*model.Passport, error) {
			return s.passports.FindByAccessToken(ctx, token)
		},
		LocalLogin: func(ctx context.Context, identifier, password string) (*model.Passport, error) {
			return s.findLocalPassport(ctx, identifier, password)
		},
	}
}

// Redirect はログイン要求をIdPへのリダイレクトに変換する。
// ANONYMOUS → REDIRECTED_TO_PROVIDER遷移。
// プロバイダーが要求ホストで解決できない場合はREJECTED相当のエラーを返す。
// ローカルプロバイダーの場合は外部リダイレクトせずLocal=trueを返す。
// returnURIはセッションに保存され、セッション確立時に回収される。
func (s *Service) Redirect(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName, returnURI string) (*RedirectResult, error) {
	p, err := s.providers.GetProvider(ctx, cache, hostName, providerName, strategyName)
	if err != nil {
		return nil, err
	}

	if cache != nil && returnURI != "" {
		cache.SetLastURI(returnURI)
	}

	if p.IsLocal() {
		return &RedirectResult{Local: true, Flow: StateRedirectedToProvider}, nil
	}

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	if cache != nil {
		cache.SetLoginState(state)
	}

	location, err := s.registry.Authenticate(strategyName, state)
	if err != nil {
		return nil, err
	}

	s.logger.Info("認証リダイレクトを開始しました",
		slog.String("host", hostName),
		slog.String("provider", p.Provider),
		slog.String("strategy", strategyName))

	return &RedirectResult{Location: location, State: state, Flow: StateRedirectedToProvider}, nil
}

// Connect はIdPコールバックを検証し、パスポートをリンクしてセッションを確立する。
// REDIRECTED_TO_PROVIDER → PROVIDER_CALLBACK_RECEIVED → LINKED →
// SESSION_ESTABLISHEDの遷移を1回の呼び出しで駆動する。
// 各段の失敗はREJECTED相当のエラーとして呼び出し側に返る。
func (s *Service) Connect(ctx context.Context, cache *session.Cache, hostName, providerName, strategyName string, query url.Values) (*SessionResult, error) {
	p, err := s.providers.GetProvider(ctx, cache, hostName, providerName, strategyName)
	if err != nil {
		return nil, err
	}

	// stateを発行するプロトコルはコールバック検証前にstateを照合する。
	// CASのチケット検証はstateを持たない
	if usesState(p.Protocol) {
		if err := verifyState(cache, query.Get("state")); err != nil {
			s.logger.Warn("stateの照合に失敗しました",
				slog.String("provider", p.Provider),
				slog.String("strategy", strategyName))
			s.recordLogin(p.Provider, string(p.Protocol), "failure")
			return nil, err
		}
	}

	// PROVIDER_CALLBACK_RECEIVED
	profile, err := s.registry.Callback(ctx, strategyName, query)
	if err != nil {
		s.logger.Warn("IdPコールバックの検証に失敗しました",
			slog.String("provider", p.Provider),
			slog.String("strategy", strategyName),
			slog.String("error", err.Error()))
		s.recordLogin(p.Provider, string(p.Protocol), "failure")
		return nil, err
	}
	if profile == nil || profile.Identifier == "" {
		return nil, model.NewUpstreamProviderError("no profile returned")
	}

	s.sanitizeProfile(profile)

	// メールを返さないIdPには合成プレースホルダを割り当てる。
	// ローカル認証には使えない形式にして、誤用をドメインレベルで遮断する
	email := profile.Email
	if email == "" {
		email = fmt.Sprintf("%s@%s.invalid", profile.Identifier, p.Provider)
	}

	// LINKED
	pp, err := s.passports.AddPassport(ctx, &model.Passport{
		Protocol:       p.Protocol,
		Provider:       p.Provider,
		Identifier:     profile.Identifier,
		AccessToken:    profile.AccessToken,
		TokenExpiresIn: profile.TokenExpiresIn,
		NameFirst:      profile.NameFirst,
		NameLast:       profile.NameLast,
		NameDisplay:    profile.NameDisplay,
		Username:       profile.Username,
		Email:          email,
		Image:          profile.Image,
		Gender:         profile.Gender,
		Language:       profile.Language,
	}, nil)
	if err != nil {
		return nil, err
	}

	result, err := s.establishSession(ctx, cache, pp)
	if err != nil {
		return nil, err
	}

	s.recordLogin(p.Provider, string(p.Protocol), "success")
	s.logger.Info("フェデレーション認証が完了しました",
		slog.String("provider", p.Provider),
		slog.String("user_id", pp.UserID))

	return result, nil
}

// LocalLogin はローカル資格情報でセッションを確立する。
// identifierはメールアドレスまたはユーザー名。
// 照合失敗は常に一般化されたINVALID_CREDENTIALSを返し、
// ユーザー名とパスワードのどちらが誤りかを漏らさない。
func (s *Service) LocalLogin(ctx context.Context, cache *session.Cache, identifier, password string) (*SessionResult, error) {
	if identifier == "" {
		return nil, model.NewInvalidRequestError("identifier")
	}
	if password == "" {
		return nil, model.NewInvalidRequestError("password")
	}

	pp, err := s.registry.LocalLogin(ctx, identifier, password)
	if err != nil {
		s.recordLogin(model.LocalProviderName, string(model.ProtocolLocal), "failure")
		return nil, err
	}
	if pp == nil {
		s.recordLogin(model.LocalProviderName, string(model.ProtocolLocal), "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	result, err := s.establishSession(ctx, cache, pp)
	if err != nil {
		return nil, err
	}

	s.recordLogin(model.LocalProviderName, string(model.ProtocolLocal), "success")
	s.logger.Info("ローカル認証が完了しました", slog.String("user_id", pp.UserID))
	return result, nil
}

// Register はローカルユーザーを登録し、セッションを確立する。
// パスワードは必須。アクセストークンを発行するため、登録直後から
// ベアラー認証も利用できる。
func (s *Service) Register(ctx context.Context, cache *session.Cache, username, email, password string) (*SessionResult, error) {
	if password == "" {
		return nil, model.NewInvalidRequestError("password")
	}

	token, err := newAccessToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	pp, err := s.passports.AddPassport(ctx, &model.Passport{
		Protocol:    model.ProtocolLocal,
		Provider:    model.LocalProviderName,
		Username:    username,
		Email:       email,
		Password:    password,
		AccessToken: token,
	}, nil)
	if err != nil {
		return nil, err
	}

	result, err := s.establishSession(ctx, cache, pp)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ローカルユーザーを登録しました", slog.String("user_id", pp.UserID))
	return result, nil
}

// Bearer はベアラートークンでセッションを確立する。
// ANONYMOUS → SESSION_ESTABLISHEDのショートカット遷移。
// トークンまたはユーザーの不在は未認証として(nil, nil)を返し、エラーにしない。
func (s *Service) Bearer(ctx context.Context, cache *session.Cache, token string) (*SessionResult, error) {
	if token == "" {
		return nil, nil
	}

	pp, err := s.registry.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if pp == nil {
		return nil, nil
	}

	user, err := s.directory.GetUser(ctx, cache, pp.UserID)
	if err != nil {
		if model.HasErrorCode(err, model.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if cache != nil {
		cache.PopulateUser(user)
		cache.AppendPassport(pp)
	}

	return &SessionResult{User: user, Passport: pp, Flow: StateSessionEstablished}, nil
}

// Logout は認証状態を破棄する。SESSION_ESTABLISHED → ANONYMOUS遷移。
// キャッシュの認証リージョンと保留中のリダイレクト先を消去する。
func (s *Service) Logout(cache *session.Cache) FlowState {
	if cache != nil {
		cache.ClearAuth()
		cache.ClearLastURI()
	}
	if s.metrics != nil {
		s.metrics.RecordLogout()
	}
	return StateAnonymous
}

// establishSession はリンク済みパスポートからセッションを確立する。
// LINKED → SESSION_ESTABLISHED遷移。保留中のリダイレクト先を回収して消去する。
func (s *Service) establishSession(ctx context.Context, cache *session.Cache, pp *model.Passport) (*SessionResult, error) {
	user, err := s.directory.GetUser(ctx, nil, pp.UserID)
	if err != nil {
		return nil, err
	}

	var returnURI string
	if cache != nil {
		cache.PopulateUser(user)
		cache.AppendPassport(pp)
		if uri, ok := cache.LastURI(); ok {
			returnURI = uri
		}
		cache.ClearLastURI()
	}

	if s.metrics != nil {
		s.metrics.RecordSessionEstablished()
	}

	return &SessionResult{
		User:      user,
		Passport:  pp,
		ReturnURI: returnURI,
		Flow:      StateSessionEstablished,
	}, nil
}

// findLocalPassport はローカル資格情報を照合する。
// identifierの形式からメールかユーザー名かを判別する。
// 不在・不一致はいずれも一般化されたINVALID_CREDENTIALSになる。
func (s *Service) findLocalPassport(ctx context.Context, identifier, password string) (*model.Passport, error) {
	creds := passport.Credentials{
		Provider: model.LocalProviderName,
		Password: password,
	}
	if model.ValidEmail(identifier) {
		creds.Email = identifier
	} else {
		creds.Username = identifier
	}

	pp, err := s.passports.FindPassport(ctx, creds)
	if err != nil {
		if model.HasErrorCode(err, model.ErrCodeInvalidCredentials) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, err
	}
	if pp == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return pp, nil
}

// sanitizeProfile はIdP由来のテキストフィールドからHTMLを除去する。
func (s *Service) sanitizeProfile(p *Profile) {
	if s.sanitizer == nil {
		return
	}
	s.sanitizer.SanitizeAll(&p.NameFirst, &p.NameLast, &p.NameDisplay, &p.Username)
}

// newState はCSRF防止用のstate値を生成する。
func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// usesState はプロトコルがログイン開始時にstateを発行するかを返す。
func usesState(p model.Protocol) bool {
	switch p {
	case model.ProtocolOAuth, model.ProtocolOAuth2, model.ProtocolOpenID:
		return true
	default:
		return false
	}
}

// verifyState はコールバックのstateをセッションに保存した値と照合する。
// 保存値はこの照合で消費され、再利用できない。
func verifyState(cache *session.Cache, got string) error {
	if got == "" {
		return model.NewInvalidRequestError("state")
	}
	if cache == nil {
		return model.NewValidationError("state")
	}
	want, ok := cache.ConsumeLoginState()
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return model.NewValidationError("state")
	}
	return nil
}

// newAccessToken は暗号的に安全なアクセストークンを生成する。
func newAccessToken() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
