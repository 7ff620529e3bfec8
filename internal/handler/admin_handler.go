package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ssokit/internal/middleware"
	"github.com/hitoshi/ssokit/internal/model"
	"github.com/hitoshi/ssokit/internal/session"
)

// HostServiceInterface はホスト管理ハンドラーが必要とするサービスインターフェース。
type HostServiceInterface interface {
	ListHosts(ctx context.Context, cache *session.Cache) ([]*model.Host, error)
	AddHost(ctx context.Context, cache *session.Cache, h *model.Host) (*model.Host, error)
}

// ProviderServiceInterface はプロバイダー管理ハンドラーが必要とするサービスインターフェース。
type ProviderServiceInterface interface {
	ListProviders(ctx context.Context, cache *session.Cache, hostName string) ([]*model.Provider, error)
	AddProvider(ctx context.Context, cache *session.Cache, p *model.Provider) (*model.Provider, error)
}

// DirectoryServiceInterface はユーザー一覧ハンドラーが必要とするサービスインターフェース。
type DirectoryServiceInterface interface {
	GetUsers(ctx context.Context, hostName string) ([]*model.User, error)
}

// AdminHandler はホスト・プロバイダー・ユーザー管理のHTTPハンドラー。
type AdminHandler struct {
	hosts     HostServiceInterface
	providers ProviderServiceInterface
	directory DirectoryServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(hosts HostServiceInterface, providers ProviderServiceInterface, directory DirectoryServiceInterface) *AdminHandler {
	return &AdminHandler{
		hosts:     hosts,
		providers: providers,
		directory: directory,
	}
}

// addHostRequest はホスト登録リクエストのボディ。
type addHostRequest struct {
	HostName     string   `json:"hostName"`
	Master       bool     `json:"master"`
	Environments []string `json:"environments"`
}

// ListHosts は登録済みホスト一覧を返す。
// GET /api/hosts
func (h *AdminHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	cache := middleware.CacheFromContext(r.Context())

	hosts, err := h.hosts.ListHosts(r.Context(), cache)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hosts)
}

// AddHost はホストを登録する。既存のホスト名は上書き更新される。
// POST /api/hosts
func (h *AdminHandler) AddHost(w http.ResponseWriter, r *http.Request) {
	var req addHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("body"))
		return
	}

	saved, err := h.hosts.AddHost(r.Context(), middleware.CacheFromContext(r.Context()), &model.Host{
		HostName:     req.HostName,
		Master:       req.Master,
		Environments: req.Environments,
	})
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// ListProviders は要求ホストで利用可能なプロバイダー一覧を返す。
// clientSecretとhostsは常に落とした形で返る。
// GET /api/providers
func (h *AdminHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	hostName, err := middleware.HostFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidHostError())
		return
	}

	providers, err := h.providers.ListProviders(r.Context(), middleware.CacheFromContext(r.Context()), hostName)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, providers)
}

// addProviderRequest はプロバイダー登録リクエストのボディ。
// model.ProviderのClientSecretとHostsは外部向けシリアライズで秘匿されるため、
// 登録時のみ専用のリクエスト型で受け取る。
type addProviderRequest struct {
	Name         string   `json:"name"`
	Provider     string   `json:"provider"`
	Protocol     string   `json:"protocol"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	URLValidate  string   `json:"urlValidate"`
	URLProfile   string   `json:"urlProfile"`
	URLCallback  string   `json:"urlCallback"`
	Scope        []string `json:"scope"`
	Fields       []string `json:"fields"`
	ClientID     string   `json:"clientID"`
	ClientSecret string   `json:"clientSecret"`
	Hosts        []string `json:"hosts"`
	StrategyName string   `json:"strategyName"`
}

// AddProvider はプロバイダーを登録する。(provider, type) をキーに上書き更新される。
// POST /api/providers
func (h *AdminHandler) AddProvider(w http.ResponseWriter, r *http.Request) {
	var req addProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("body"))
		return
	}

	p := &model.Provider{
		Name:         req.Name,
		Provider:     req.Provider,
		Protocol:     model.Protocol(req.Protocol),
		Type:         model.AuthType(req.Type),
		Description:  req.Description,
		URL:          req.URL,
		URLValidate:  req.URLValidate,
		URLProfile:   req.URLProfile,
		URLCallback:  req.URLCallback,
		Scope:        req.Scope,
		Fields:       req.Fields,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Hosts:        req.Hosts,
		StrategyName: req.StrategyName,
	}

	saved, err := h.providers.AddProvider(r.Context(), middleware.CacheFromContext(r.Context()), p)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved.Redacted())
}

// ListUsers は要求ホストに関連付けられたユーザー一覧を返す。
// GET /api/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	hostName, err := middleware.HostFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidHostError())
		return
	}

	users, err := h.directory.GetUsers(r.Context(), hostName)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
