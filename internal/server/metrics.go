// Package server: metrics.go registers all Prometheus metrics for the HTTP
// server and the document pipeline and exposes helpers used by handlers and
// middleware.
package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/budget"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"
)

// Metrics holds all Prometheus metrics owned by docqa. One instance is
// created at startup and shared by the server and the session manager, so
// tests can inject a fresh prometheus.Registry without polluting the default.
type Metrics struct {
	// opRequestsTotal counts completed analyze/ask/quiz operations,
	// partitioned by op and outcome: "ok", "timeout", "client_error" or "error".
	opRequestsTotal *prometheus.CounterVec

	// opDurationSeconds records the wall-clock duration of each operation.
	opDurationSeconds *prometheus.HistogramVec

	// opInFlight is the number of operations currently running.
	opInFlight *prometheus.GaugeVec

	// promptTokens records the estimated prompt size of every generation.
	promptTokens *prometheus.HistogramVec

	// promptOverflowTotal counts prompts estimated to exceed the context window.
	promptOverflowTotal *prometheus.CounterVec

	// indexChunks records the chunk count of every successfully built index.
	indexChunks prometheus.Histogram

	// sessionsActive is the number of live sessions.
	sessionsActive prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected by the model-route limiter,
	// partitioned by the exhausted scope: "client" or "session".
	rateLimitedTotal *prometheus.CounterVec
}

// NewMetrics registers all metrics against reg and returns them.
// promauto.With(reg) registers into the provided registry rather than the
// global default, which keeps unit tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		opRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "operation",
			Name:      "requests_total",
			Help:      "Total number of analyze, ask and quiz operations completed, partitioned by outcome.",
		}, []string{"op", "outcome"}),

		opDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of analyze, ask and quiz operations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op", "outcome"}),

		opInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "operation",
			Name:      "in_flight",
			Help:      "Number of analyze, ask and quiz operations currently running.",
		}, []string{"op"}),

		promptTokens: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "prompt",
			Name:      "tokens_estimated",
			Help:      "Estimated prompt size in tokens for each generation call.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 9),
		}, []string{"op"}),

		promptOverflowTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "prompt",
			Name:      "overflow_total",
			Help:      "Prompts estimated to exceed the model context window together with the output budget.",
		}, []string{"op"}),

		indexChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks in each built index.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live sessions.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests to model-backed routes rejected with 429, partitioned by the exhausted budget.",
		}, []string{"scope"}),
	}
}

// ObservePrompt records a prompt budget. It matches the hook signature the
// session manager passes down to the pipeline.
func (m *Metrics) ObservePrompt(op string, u budget.Usage) {
	m.promptTokens.WithLabelValues(op).Observe(float64(u.PromptTokens))
	if !u.Fits() {
		m.promptOverflowTotal.WithLabelValues(op).Inc()
	}
}

// startOp marks op as in flight and returns a function that records its
// outcome and duration.
func (m *Metrics) startOp(op string) func(outcome string) {
	start := time.Now()
	m.opInFlight.WithLabelValues(op).Inc()
	return func(outcome string) {
		m.opInFlight.WithLabelValues(op).Dec()
		m.opRequestsTotal.WithLabelValues(op, outcome).Inc()
		m.opDurationSeconds.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}
}
