// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証オーケストレーターやワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(provider, protocol, outcome string)
	RecordSessionEstablished()
	RecordLogout()
	RecordSessionsDeleted(count int64)
}

// ログイン結果のoutcomeラベル値。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	sessions        prometheus.Counter
	logouts         prometheus.Counter
	sessionsDeleted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ssokit_login_total",
			Help: "プロバイダー・プロトコル・結果別のログイン試行数",
		}, []string{"provider", "protocol", "outcome"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssokit_session_established_total",
			Help: "確立されたセッションの合計数",
		}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssokit_logout_total",
			Help: "ログアウトの合計数",
		}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssokit_sessions_deleted_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.sessions,
		c.logouts,
		c.sessionsDeleted,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(provider, protocol, outcome string) {
	c.logins.WithLabelValues(provider, protocol, outcome).Inc()
}

// RecordSessionEstablished はセッション確立を記録する。
func (c *Collector) RecordSessionEstablished() {
	c.sessions.Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordSessionsDeleted はクリーンアップによる削除件数を記録する。
func (c *Collector) RecordSessionsDeleted(count int64) {
	c.sessionsDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
