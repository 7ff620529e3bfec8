package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/ssokit/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用した権限グループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// List は全グループをguid昇順で返す。
func (r *PostgresGroupRepo) List(ctx context.Context) ([]*model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, guid, group_name, group_name_display, hosts, created_at
		 FROM auth_groups ORDER BY guid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		group := &model.Group{}
		var display []byte
		if err := rows.Scan(
			&group.ID, &group.GUID, &group.GroupName,
			&display, pq.Array(&group.Hosts), &group.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if len(display) > 0 {
			if err := json.Unmarshal(display, &group.DisplayName); err != nil {
				return nil, fmt.Errorf("failed to decode group display names: %w", err)
			}
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// EnsureBuiltins は組み込みグループ（superuser/admin/guest）を冪等に登録する。
func (r *PostgresGroupRepo) EnsureBuiltins(ctx context.Context) error {
	for _, group := range model.BuiltinGroups {
		display, err := json.Marshal(group.DisplayName)
		if err != nil {
			return fmt.Errorf("failed to encode group display names: %w", err)
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO auth_groups (id, guid, group_name, group_name_display, hosts, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (group_name) DO NOTHING`,
			uuid.New().String(), group.GUID, group.GroupName,
			display, pq.Array(group.Hosts), time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to ensure builtin group %s: %w", group.GroupName, err)
		}
	}
	return nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
