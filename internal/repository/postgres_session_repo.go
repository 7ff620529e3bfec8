package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/ssokit/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// セッションのデータバッグはJSONBカラムとして保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := marshalSessionData(session.Data)
	if err != nil {
		return err
	}

	var userID any
	if session.UserID != "" {
		userID = session.UserID
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, userID, data, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var userID sql.NullString
	var data []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, data, expires_at, created_at
		 FROM auth_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &userID, &data, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.UserID = userID.String
	if err := json.Unmarshal(data, &session.Data); err != nil {
		// バッグが壊れている場合は空として扱い、セッション自体は生かす
		session.Data = make(map[string]any)
	}
	if session.Data == nil {
		session.Data = make(map[string]any)
	}

	return session, nil
}

// Save はセッションのデータバッグとユーザー参照を上書き保存する。
// 同一セッションへの並行書き込みはlast-writer-wins。
func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	data, err := marshalSessionData(session.Data)
	if err != nil {
		return err
	}

	var userID any
	if session.UserID != "" {
		userID = session.UserID
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE auth_sessions SET user_id = $1, data = $2 WHERE id = $3`,
		userID, data, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func marshalSessionData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	return buf, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
