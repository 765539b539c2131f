package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	swept         *prometheus.CounterVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "http_errors_total",
			Help:      "Error responses by code.",
		}, []string{"route", "method", "code"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "session_verifications_total",
			Help:      "Session token verifications by account kind and outcome.",
		}, []string{"kind", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "status_transitions_total",
			Help:      "Booking state machine transitions by event and result.",
		}, []string{"event", "result"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "refund_attempts_total",
			Help:      "Settlement refund attempts by outcome.",
		}, []string{"outcome"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "session_tokens_swept_total",
			Help:      "Expired session tokens removed by the sweeper.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.errors,
		m.verifications,
		m.transitions,
		m.refunds,
		m.swept,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordVerification counts one session verification outcome.
func (m *Metrics) RecordVerification(kind, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(kind, outcome).Inc()
}

// RecordTransition counts one state machine attempt.
func (m *Metrics) RecordTransition(event, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, result).Inc()
}

// RecordRefund counts one refund attempt outcome.
func (m *Metrics) RecordRefund(outcome string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(outcome).Inc()
}

// RecordSweep adds the number of tokens removed for a kind.
func (m *Metrics) RecordSweep(kind string, removed int64) {
	if m == nil || removed <= 0 {
		return
	}
	m.swept.WithLabelValues(kind).Add(float64(removed))
}
