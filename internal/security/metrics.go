package security

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the pipeline's Prometheus instruments. Each instance
// owns its registry so tests can build apps side by side.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   prometheus.Histogram
	sweeps     prometheus.Counter
	swept      prometheus.Counter
	dropped    prometheus.Counter
}

// NewMetrics constructs and registers the pipeline instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secgate_requests_total",
			Help: "Requests seen by the security pipeline, by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secgate_rejections_total",
			Help: "Requests rejected by the security pipeline, by code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "secgate_pipeline_duration_seconds",
			Help:    "Guard chain evaluation time.",
			Buckets: prometheus.DefBuckets,
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secgate_sweeps_total",
			Help: "Completed periodic state sweeps.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secgate_swept_entries_total",
			Help: "State entries reclaimed by sweeps.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secgate_audit_dropped_total",
			Help: "Audit entries dropped by the emission cap.",
		}),
	}
	registry.MustRegister(m.requests, m.rejections, m.duration, m.sweeps, m.swept, m.dropped)
	return m
}

// IncRequest counts a pipeline outcome ("allowed" or "rejected").
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// IncRejection counts a rejection by code.
func (m *Metrics) IncRejection(code ErrorCode) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(code)).Inc()
}

// ObserveDuration records guard chain evaluation time in seconds.
func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

// IncSweep records a completed sweep and the entries it reclaimed.
func (m *Metrics) IncSweep(removed int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.swept.Add(float64(removed))
}

// IncAuditDropped counts an audit entry dropped by the emission cap.
func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
