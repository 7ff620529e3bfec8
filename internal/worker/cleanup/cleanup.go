// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// PostgreSQLセッションストアは行の有効期限を自動で回収しないため、
// expires_atを過ぎた行を定期バッチで削除する。
// Redisストア利用時はTTLが同じ役割を果たすのでこのジョブは不要。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// MetricsRecorder は削除件数のメトリクス記録。nilの場合は記録しない。
type MetricsRecorder interface {
	RecordSessionsDeleted(count int64)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics MetricsRecorder

	// GracePeriod は期限切れから削除までの猶予。
	// 時計のずれたクライアントが期限直後のセッションを参照しても
	// 即座に行が消えないようにする（デフォルト: 1時間）。
	GracePeriod time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:          db,
		logger:      logger,
		GracePeriod: time.Hour,
	}
}

// SetMetrics は削除件数のメトリクス記録を有効化する。
func (j *CleanupJob) SetMetrics(m MetricsRecorder) {
	j.metrics = m
}

// Run は期限切れセッションを削除する。
// expires_atがGracePeriod前より古い行をDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM auth_sessions WHERE expires_at < $1`
	result, err := j.db.ExecContext(ctx, query, time.Now().Add(-j.GracePeriod))
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsDeleted(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
