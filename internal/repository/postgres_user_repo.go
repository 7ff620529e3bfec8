package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ssokit/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反エラーコード。
const uniqueViolation = "23505"

// isUniqueViolation は一意制約違反エラーかを判定する。
// レース時に二重作成を防ぐ最終的な砦はストアの一意制約であり、
// 本コアにはLINK_CONFLICTとして表面化する。
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, COALESCE(username, ''), email, groups, hosts, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email,
		pq.Array(&user.Groups), pq.Array(&user.Hosts),
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsernameOrEmail はusernameまたはemailのOR検索を行う。
// 空のフィールドは条件から除外する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	var row *sql.Row
	switch {
	case username != "" && email != "":
		row = r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM auth_users
			 WHERE username = $1 OR email = $2 LIMIT 1`,
			username, email,
		)
	case username != "":
		row = r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM auth_users WHERE username = $1`,
			username,
		)
	case email != "":
		row = r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM auth_users WHERE email = $1`,
			email,
		)
	default:
		return nil, fmt.Errorf("no identifiers for the user have been specified")
	}

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByHost は指定ホストに関連付けられた全ユーザーを返す。
func (r *PostgresUserRepo) FindByHost(ctx context.Context, hostName string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE $1 = ANY(hosts)`,
		model.NormalizeHostName(hostName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by host: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// FindByHostAndEmail はホストとemailでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByHostAndEmail(ctx context.Context, hostName, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users
		 WHERE $1 = ANY(hosts) AND email = $2`,
		model.NormalizeHostName(hostName), email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by host and email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。username/emailの一意制約違反はLINK_CONFLICTとして表面化する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	// 空のusernameはNULLとして保存し、一意制約と両立させる
	var username any
	if user.Username != "" {
		username = user.Username
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, username, email, groups, hosts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, username, user.Email,
		pq.Array(user.Groups), pq.Array(user.Hosts),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert user: %w", model.NewLinkConflictError())
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
