package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/ssokit/internal/model"
)

// PostgresPassportRepo はPostgreSQLを使用したPassportリポジトリ。
type PostgresPassportRepo struct {
	db *sql.DB
}

// NewPostgresPassportRepo はPostgresPassportRepoを生成する。
func NewPostgresPassportRepo(db *sql.DB) *PostgresPassportRepo {
	return &PostgresPassportRepo{db: db}
}

const passportColumns = `id, user_id, COALESCE(password, ''), protocol, provider,
	COALESCE(identifier, ''), COALESCE(access_token, ''),
	COALESCE(token_expires_in, ''), COALESCE(token_expires_at, ''),
	COALESCE(name_first, ''), COALESCE(name_last, ''), COALESCE(name_display, ''),
	COALESCE(username, ''), email, COALESCE(image, ''), COALESCE(gender, ''),
	language, created_at, updated_at`

func scanPassport(row interface{ Scan(...any) error }) (*model.Passport, error) {
	p := &model.Passport{}
	var protocol string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Password, &protocol, &p.Provider,
		&p.Identifier, &p.AccessToken,
		&p.TokenExpiresIn, &p.TokenExpiresAt,
		&p.NameFirst, &p.NameLast, &p.NameDisplay,
		&p.Username, &p.Email, &p.Image, &p.Gender,
		&p.Language, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Protocol = model.Protocol(protocol)
	return p, nil
}

// FindOne は条件に一致する1件を返す。見つからない場合はnilを返す。
// 条件は等価の連言のみで構成される。
func (r *PostgresPassportRepo) FindOne(ctx context.Context, criteria PassportCriteria) (*model.Passport, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if criteria.Provider != "" {
		conditions = append(conditions, "provider = "+arg(criteria.Provider))
	}
	if criteria.Protocol != "" {
		conditions = append(conditions, "protocol = "+arg(criteria.Protocol))
	}
	if criteria.Identifier != "" {
		conditions = append(conditions, "identifier = "+arg(criteria.Identifier))
	}
	if criteria.Email != "" {
		conditions = append(conditions, "email = "+arg(criteria.Email))
	}
	if criteria.Username != "" {
		conditions = append(conditions, "username = "+arg(criteria.Username))
	}
	if len(conditions) == 0 {
		return nil, fmt.Errorf("empty passport criteria")
	}

	query := `SELECT ` + passportColumns + ` FROM auth_passports WHERE ` +
		strings.Join(conditions, " AND ") + ` LIMIT 1`

	p, err := scanPassport(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find passport: %w", err)
	}

	return p, nil
}

// FindByAccessToken はアクセストークンでPassportを検索する。見つからない場合はnilを返す。
func (r *PostgresPassportRepo) FindByAccessToken(ctx context.Context, token string) (*model.Passport, error) {
	p, err := scanPassport(r.db.QueryRowContext(ctx,
		`SELECT `+passportColumns+` FROM auth_passports WHERE access_token = $1`,
		token,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find passport by access token: %w", err)
	}
	return p, nil
}

// Create はPassportを作成する。一意キーの制約違反はLINK_CONFLICTとして表面化する。
func (r *PostgresPassportRepo) Create(ctx context.Context, passport *model.Passport) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_passports
			(id, user_id, password, protocol, provider, identifier,
			 access_token, token_expires_in, token_expires_at,
			 name_first, name_last, name_display, username, email,
			 image, gender, language, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		passport.ID, passport.UserID, passport.Password,
		string(passport.Protocol), passport.Provider, passport.Identifier,
		passport.AccessToken, passport.TokenExpiresIn, passport.TokenExpiresAt,
		passport.NameFirst, passport.NameLast, passport.NameDisplay,
		passport.Username, passport.Email,
		passport.Image, passport.Gender, passport.Language,
		passport.CreatedAt, passport.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert passport: %w", model.NewLinkConflictError())
		}
		return fmt.Errorf("failed to insert passport: %w", err)
	}

	return nil
}

// UpdateAccessToken はアクセストークンのみを更新する。
func (r *PostgresPassportRepo) UpdateAccessToken(ctx context.Context, id, accessToken string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auth_passports SET access_token = $1, updated_at = now() WHERE id = $2`,
		accessToken, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("passport not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ PassportRepository = (*PostgresPassportRepo)(nil)
