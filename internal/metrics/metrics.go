package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for tablechat
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Code-generation metrics
	GenerationsTotal *prometheus.CounterVec

	// Snippet execution metrics
	ExecutionsTotal *prometheus.CounterVec

	// Store metrics
	UploadsTotal    prometheus.Counter
	TablesStored    prometheus.Gauge
	SessionsCreated prometheus.Counter
	FeedbackTotal   *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tablechat_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"path", "method", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tablechat_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path", "method"},
			),
			GenerationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tablechat_generations_total",
					Help: "Total number of code-generation round trips",
				},
				[]string{"result"},
			),
			ExecutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tablechat_executions_total",
					Help: "Total number of snippet executions by outcome",
				},
				[]string{"outcome"}, // value, image, error
			),
			UploadsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tablechat_uploads_total",
					Help: "Total number of successful table uploads",
				},
			),
			TablesStored: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "tablechat_tables_stored",
					Help: "Number of tables currently held in the table store",
				},
			),
			SessionsCreated: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tablechat_sessions_created_total",
					Help: "Total number of chat sessions created",
				},
			),
			FeedbackTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tablechat_feedback_total",
					Help: "Total number of feedback submissions by rating",
				},
				[]string{"rating"},
			),
		}
	})
	return sharedMetrics
}
