// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、セッション管理、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordLoginAttempt(method, result string)
	RecordSessionIssued(kind string)
	RecordSessionsReaped(count int64)
	RecordHTTPStatus(statusCode int)
	RecordIdPLatency(duration time.Duration)
}

// ログイン方式とその結果のラベル値。
const (
	LoginMethodManual  = "manual"
	LoginMethodOAuth   = "oauth"
	LoginMethodLearner = "learner"

	LoginResultSuccess  = "success"
	LoginResultRejected = "rejected"
	LoginResultError    = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginAttempts  *prometheus.CounterVec
	sessionsIssued *prometheus.CounterVec
	sessionsReaped prometheus.Counter
	httpStatus     *prometheus.CounterVec
	idpLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projecthub_login_attempts_total",
			Help: "ログイン試行数（方式・結果別）",
		}, []string{"method", "result"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projecthub_sessions_issued_total",
			Help: "発行したセッション数（種別別）",
		}, []string{"kind"}),
		sessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projecthub_sessions_reaped_total",
			Help: "期限切れで削除したセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projecthub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		idpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "projecthub_idp_latency_seconds",
			Help:    "外部IdPセッション照会のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.sessionsIssued,
		c.sessionsReaped,
		c.httpStatus,
		c.idpLatency,
	)

	return c
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt(method, result string) {
	c.loginAttempts.WithLabelValues(method, result).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued(kind string) {
	c.sessionsIssued.WithLabelValues(kind).Inc()
}

// RecordSessionsReaped は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsReaped(count int64) {
	c.sessionsReaped.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordIdPLatency はIdP照会のレイテンシを記録する。
func (c *Collector) RecordIdPLatency(duration time.Duration) {
	c.idpLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
