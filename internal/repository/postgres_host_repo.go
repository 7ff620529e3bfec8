package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ssokit/internal/model"
)

// PostgresHostRepo はPostgreSQLを使用したホストリポジトリ。
type PostgresHostRepo struct {
	db *sql.DB
}

// NewPostgresHostRepo はPostgresHostRepoを生成する。
func NewPostgresHostRepo(db *sql.DB) *PostgresHostRepo {
	return &PostgresHostRepo{db: db}
}

// FindByEnvironment は指定環境で有効な全ホストを返す。順序は未定義。
func (r *PostgresHostRepo) FindByEnvironment(ctx context.Context, environment string) ([]*model.Host, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, host_name, master, environments, created_at, updated_at
		 FROM auth_hosts
		 WHERE $1 = ANY(environments)`,
		environment,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*model.Host
	for rows.Next() {
		host := &model.Host{}
		if err := rows.Scan(
			&host.ID, &host.HostName, &host.Master,
			pq.Array(&host.Environments), &host.CreatedAt, &host.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hosts: %w", err)
	}

	return hosts, nil
}

// FindByName は正規化済みホスト名と環境でホストを検索する。見つからない場合はnilを返す。
func (r *PostgresHostRepo) FindByName(ctx context.Context, hostName, environment string) (*model.Host, error) {
	host := &model.Host{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, host_name, master, environments, created_at, updated_at
		 FROM auth_hosts
		 WHERE host_name = $1 AND $2 = ANY(environments)`,
		model.NormalizeHostName(hostName), environment,
	).Scan(
		&host.ID, &host.HostName, &host.Master,
		pq.Array(&host.Environments), &host.CreatedAt, &host.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find host: %w", err)
	}

	return host, nil
}

// Upsert は正規化済みホスト名をキーに冪等なupsertを行う。
func (r *PostgresHostRepo) Upsert(ctx context.Context, host *model.Host) (*model.Host, error) {
	saved := &model.Host{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auth_hosts (id, host_name, master, environments, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (host_name) DO UPDATE SET
			master = EXCLUDED.master,
			environments = EXCLUDED.environments,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, host_name, master, environments, created_at, updated_at`,
		host.ID, model.NormalizeHostName(host.HostName), host.Master,
		pq.Array(host.Environments), host.CreatedAt, host.UpdatedAt,
	).Scan(
		&saved.ID, &saved.HostName, &saved.Master,
		pq.Array(&saved.Environments), &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert host: %w", err)
	}

	return saved, nil
}

// compile-time interface check
var _ HostRepository = (*PostgresHostRepo)(nil)
