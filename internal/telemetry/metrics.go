// Package telemetry provides observability primitives for the Cursor API
// gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	AdmissionTotal  *prometheus.CounterVec // labels: class, outcome
	TokensProcessed *prometheus.CounterVec // labels: model, type
	StreamSilences  prometheus.Counter     // §4.8 empty-streak break-outs

	CircuitBreakerState   *prometheus.GaugeVec   // labels: proxy
	CircuitBreakerRejects *prometheus.CounterVec // labels: proxy

	TokenPoolSize prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given registerer.
// poolSize is polled live by the gauge (e.g. cursortoken.Pool.Len), and may
// be nil when the caller has no pool yet (tests).
func NewMetrics(reg prometheus.Registerer, poolSize func() float64) *Metrics {
	if poolSize == nil {
		poolSize = func() float64 { return 0 }
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cursor_gateway",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "cursor_gateway",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cursor_gateway",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		AdmissionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cursor_gateway",
			Name:      "admission_total",
			Help:      "Total admission classification outcomes.",
		}, []string{"class", "outcome"}),

		TokensProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cursor_gateway",
			Name:      "estimated_tokens_total",
			Help:      "Total estimated tokens processed.",
		}, []string{"model", "type"}),

		StreamSilences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cursor_gateway",
			Name:      "stream_silences_total",
			Help:      "Total upstream streams abandoned for exceeding the empty-read threshold.",
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cursor_gateway",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per proxy (0=closed, 1=open, 2=half_open).",
		}, []string{"proxy"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cursor_gateway",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by a proxy's open circuit breaker.",
		}, []string{"proxy"}),
	}

	m.TokenPoolSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "cursor_gateway",
		Name:      "token_pool_size",
		Help:      "Number of distinct TokenKeys currently interned.",
	}, poolSize)

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.AdmissionTotal,
		m.TokensProcessed,
		m.StreamSilences,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
		m.TokenPoolSize,
	)

	return m
}
