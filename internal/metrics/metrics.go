// Package metrics はPrometheusメトリクスの定義とHTTP計測ミドルウェアを提供します。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpress_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paperpress_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	taskOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpress_task_outcomes_total",
			Help: "Background task outcomes by kind and result",
		},
		[]string{"kind", "outcome"},
	)
)

// Middleware はHTTPリクエスト数と処理時間を記録するginミドルウェアを返します。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// ルートテンプレートをラベルに使い、カーディナリティの増加を防ぐ
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics エンドポイント用のginハンドラーを返します。
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Observer はバックグラウンドタスクの実行結果を記録します。
type Observer struct{}

// ObserveTask はタスク種別と結果 (success / failure / retry) を記録します。
func (Observer) ObserveTask(kind, outcome string) {
	taskOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}
