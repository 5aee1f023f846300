// Package metrics provides Prometheus metrics for the JURY validation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Workflow metrics
	approvalsRecorded  *prometheus.CounterVec
	gatesValidated     *prometheus.CounterVec
	cascadeRuns        prometheus.Counter
	cascadeStubs       prometheus.Counter
	signaturesRecorded *prometheus.CounterVec
	sessionsPublished  prometheus.Counter
	requestErrors      *prometheus.CounterVec

	// Document totals
	evaluationsTotal  prometheus.Gauge
	decisionsTotal    prometheus.Gauge
	publicationsTotal prometheus.Gauge

	// Store performance
	storeOpDuration *prometheus.HistogramVec

	// HTTP performance
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jury",
		subsystem:        "workflow",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.approvalsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "approvals_recorded_total",
		Help:      "Approvals recorded, by gate kind.",
	}, []string{"gate"})

	m.gatesValidated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "gates_validated_total",
		Help:      "Gates that reached validated status, by gate kind.",
	}, []string{"gate"})

	m.cascadeRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cascade_runs_total",
		Help:      "Cascade trigger invocations.",
	})

	m.cascadeStubs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cascade_stubs_created_total",
		Help:      "Final-decision stubs materialized by the cascade trigger.",
	})

	m.signaturesRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "signatures_recorded_total",
		Help:      "National signatures recorded, by signatory role.",
	}, []string{"role"})

	m.sessionsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_published_total",
		Help:      "Sessions whose publication flag flipped to visible.",
	})

	m.requestErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "request_errors_total",
		Help:      "Terminal request errors, by error kind.",
	}, []string{"kind"})

	m.evaluationsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "evaluations_total",
		Help:      "Evaluation documents in the store.",
	})

	m.decisionsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decisions_total",
		Help:      "Final-decision documents in the store.",
	})

	m.publicationsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publications_total",
		Help:      "Session publication documents in the store.",
	})

	m.storeOpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_op_duration_ms",
		Help:      "Store operation duration in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// RecordApproval increments the approval counter for a gate kind
// ("evaluation" or "decision").
func RecordApproval(gate string) {
	globalManager.approvalsRecorded.WithLabelValues(gate).Inc()
}

// RecordGateValidated increments the validated-gate counter.
func RecordGateValidated(gate string) {
	globalManager.gatesValidated.WithLabelValues(gate).Inc()
}

// RecordCascadeRun increments the cascade invocation counter.
func RecordCascadeRun() {
	globalManager.cascadeRuns.Inc()
}

// RecordCascadeStub increments the materialized-stub counter.
func RecordCascadeStub() {
	globalManager.cascadeStubs.Inc()
}

// RecordSignature increments the signature counter for a national role.
func RecordSignature(role string) {
	globalManager.signaturesRecorded.WithLabelValues(role).Inc()
}

// RecordSessionPublished increments the published-session counter.
func RecordSessionPublished() {
	globalManager.sessionsPublished.Inc()
}

// RecordRequestError increments the error counter for an error kind.
func RecordRequestError(kind string) {
	globalManager.requestErrors.WithLabelValues(kind).Inc()
}

// UpdateDocumentCounts refreshes the store document gauges.
func UpdateDocumentCounts(evaluations, decisions, publications int) {
	globalManager.evaluationsTotal.Set(float64(evaluations))
	globalManager.decisionsTotal.Set(float64(decisions))
	globalManager.publicationsTotal.Set(float64(publications))
}

// ObserveStoreOp records the duration of a store operation started at start.
func ObserveStoreOp(op string, start time.Time) {
	globalManager.storeOpDuration.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// GetRegistry returns the custom registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
