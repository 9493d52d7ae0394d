// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 為替換算の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 為替換算・台帳・整合性回復ジョブ・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordConversion(outcome string)
	RecordConversionLatency(duration time.Duration)
	RecordLedgerWrite(kind, op string)
	RecordReconcilePruned(side string, count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	conversions       *prometheus.CounterVec
	conversionLatency prometheus.Histogram
	ledgerWrites      *prometheus.CounterVec
	reconcilePruned   *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expensebook_conversion_total",
			Help: "結果別の為替換算数",
		}, []string{"outcome"}),
		conversionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "expensebook_conversion_latency_seconds",
			Help:    "為替レートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expensebook_ledger_writes_total",
			Help: "種別・操作別の取引書き込み数",
		}, []string{"kind", "op"}),
		reconcilePruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expensebook_reconcile_pruned_total",
			Help: "整合性回復で取り除いた孤立ドキュメント・宙づり参照の数",
		}, []string{"side"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expensebook_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.conversions,
		c.conversionLatency,
		c.ledgerWrites,
		c.reconcilePruned,
		c.httpStatus,
	)

	return c
}

// RecordConversion は為替換算の結果を記録する。
func (c *Collector) RecordConversion(outcome string) {
	c.conversions.WithLabelValues(outcome).Inc()
}

// RecordConversionLatency は為替レートAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordConversionLatency(duration time.Duration) {
	c.conversionLatency.Observe(duration.Seconds())
}

// RecordLedgerWrite は取引の書き込みを記録する。
func (c *Collector) RecordLedgerWrite(kind, op string) {
	c.ledgerWrites.WithLabelValues(kind, op).Inc()
}

// RecordReconcilePruned は整合性回復で取り除いた件数を記録する。
func (c *Collector) RecordReconcilePruned(side string, count int) {
	c.reconcilePruned.WithLabelValues(side).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストとメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordConversion(string)               {}
func (Nop) RecordConversionLatency(time.Duration) {}
func (Nop) RecordLedgerWrite(string, string)      {}
func (Nop) RecordReconcilePruned(string, int)     {}
func (Nop) RecordHTTPStatus(int)                  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
