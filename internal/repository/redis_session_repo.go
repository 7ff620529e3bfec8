package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/ssokit/internal/model"
)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションストアをキーバリューとして外出しするデプロイ向けの実装で、
// 有効期限はRedisのTTLに委ねる。
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

const (
	sessionKeyPrefix  = "ssokit:session:"
	userSessionPrefix = "ssokit:user-sessions:"
)

// redisSession はRedisに保存するセッションのシリアライズ形式。
type redisSession struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data"`
	ExpiresAt time.Time      `json:"expiresAt"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.write(ctx, session)
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	// TTLとは独立に期限も検証する（時計のずれへの防波堤）
	if time.Now().After(stored.ExpiresAt) {
		return nil, nil
	}

	data := stored.Data
	if data == nil {
		data = make(map[string]any)
	}

	return &model.Session{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Data:      data,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// Save はセッションのデータバッグとユーザー参照を上書き保存する。
func (r *RedisSessionRepo) Save(ctx context.Context, session *model.Session) error {
	return r.write(ctx, session)
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	sess, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if sess != nil && sess.UserID != "" {
		if err := r.client.SRem(ctx, userSessionPrefix+sess.UserID, id).Err(); err != nil {
			return fmt.Errorf("failed to unindex session: %w", err)
		}
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, userSessionPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	for _, id := range ids {
		if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	if err := r.client.Del(ctx, userSessionPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete user session index: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) write(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}

	buf, err := json.Marshal(redisSession{
		ID:        session.ID,
		UserID:    session.UserID,
		Data:      session.Data,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKeyPrefix+session.ID, buf, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	// ユーザーごとの全削除用に逆引きインデックスを維持する
	if session.UserID != "" {
		if err := r.client.SAdd(ctx, userSessionPrefix+session.UserID, session.ID).Err(); err != nil {
			return fmt.Errorf("failed to index session: %w", err)
		}
		if err := r.client.Expire(ctx, userSessionPrefix+session.UserID, ttl).Err(); err != nil {
			return fmt.Errorf("failed to expire session index: %w", err)
		}
	}

	return nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
