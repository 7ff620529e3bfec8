package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/ssokit/internal/model"
)

// PostgresProviderRepo はPostgreSQLを使用したプロバイダーリポジトリ。
type PostgresProviderRepo struct {
	db *sql.DB
}

// NewPostgresProviderRepo はPostgresProviderRepoを生成する。
func NewPostgresProviderRepo(db *sql.DB) *PostgresProviderRepo {
	return &PostgresProviderRepo{db: db}
}

const providerColumns = `id, name, provider, protocol, type, description,
	url, url_validate, url_profile, url_callback, scope, fields,
	client_id, client_secret, hosts, strategy_name, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*model.Provider, error) {
	p := &model.Provider{}
	var protocol, authType string
	err := row.Scan(
		&p.ID, &p.Name, &p.Provider, &protocol, &authType, &p.Description,
		&p.URL, &p.URLValidate, &p.URLProfile, &p.URLCallback,
		pq.Array(&p.Scope), pq.Array(&p.Fields),
		&p.ClientID, &p.ClientSecret, pq.Array(&p.Hosts),
		&p.StrategyName, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Protocol = model.Protocol(protocol)
	p.Type = model.AuthType(authType)
	return p, nil
}

// List はプロバイダー一覧をprovider昇順で返す。
// hostNameが空でない場合、hosts集合に含むものに絞り込む。
func (r *PostgresProviderRepo) List(ctx context.Context, hostName string) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM auth_providers`
	var args []any
	if hostName != "" {
		query += ` WHERE $1 = ANY(hosts)`
		args = append(args, model.NormalizeHostName(hostName))
	}
	query += ` ORDER BY provider ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate providers: %w", err)
	}

	return providers, nil
}

// FindOne は条件に一致する1件を返す。見つからない場合はnilを返す。
func (r *PostgresProviderRepo) FindOne(ctx context.Context, criteria ProviderCriteria) (*model.Provider, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if criteria.HostName != "" {
		conditions = append(conditions, arg(model.NormalizeHostName(criteria.HostName))+" = ANY(hosts)")
	}
	if criteria.Provider != "" {
		conditions = append(conditions, "provider = "+arg(strings.ToLower(criteria.Provider)))
	}
	if criteria.Name != "" {
		conditions = append(conditions, "name = "+arg(strings.ToLower(criteria.Name)))
	}
	if criteria.Type != "" {
		conditions = append(conditions, "type = "+arg(criteria.Type))
	}
	if len(conditions) == 0 {
		return nil, fmt.Errorf("empty provider criteria")
	}

	query := `SELECT ` + providerColumns + ` FROM auth_providers WHERE ` +
		strings.Join(conditions, " AND ") + ` LIMIT 1`

	p, err := scanProvider(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}

	return p, nil
}

// Upsert は (provider, type) をキーに冪等なupsertを行う。
func (r *PostgresProviderRepo) Upsert(ctx context.Context, provider *model.Provider) (*model.Provider, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO auth_providers
			(id, name, provider, protocol, type, description,
			 url, url_validate, url_profile, url_callback, scope, fields,
			 client_id, client_secret, hosts, strategy_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (provider, type) DO UPDATE SET
			name = EXCLUDED.name,
			protocol = EXCLUDED.protocol,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			url_validate = EXCLUDED.url_validate,
			url_profile = EXCLUDED.url_profile,
			url_callback = EXCLUDED.url_callback,
			scope = EXCLUDED.scope,
			fields = EXCLUDED.fields,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			hosts = EXCLUDED.hosts,
			strategy_name = EXCLUDED.strategy_name,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+providerColumns,
		provider.ID, strings.ToLower(provider.Name), strings.ToLower(provider.Provider),
		string(provider.Protocol), string(provider.Type), provider.Description,
		provider.URL, provider.URLValidate, provider.URLProfile, provider.URLCallback,
		pq.Array(provider.Scope), pq.Array(provider.Fields),
		provider.ClientID, provider.ClientSecret, pq.Array(provider.Hosts),
		provider.StrategyName, provider.CreatedAt, provider.UpdatedAt,
	)

	saved, err := scanProvider(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert provider: %w", err)
	}

	return saved, nil
}

// compile-time interface check
var _ ProviderRepository = (*PostgresProviderRepo)(nil)
