// Package observability provides Prometheus metrics for the ingestion and
// scoring paths.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Rate limiter
	LimiterAcquisitions *prometheus.CounterVec
	LimiterWaits        *prometheus.CounterVec

	// Response cache
	CacheLookups *prometheus.CounterVec

	// Provider calls
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Normalizer
	NormalizedItems *prometheus.CounterVec

	// Persistence
	RecordsStored  *prometheus.CounterVec
	FilingsSkipped prometheus.Counter

	// Orchestrator
	IngestionTasks    *prometheus.CounterVec
	IngestionDuration *prometheus.HistogramVec

	// Scoring
	ScoringRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "finsight"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		LimiterAcquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "acquisitions_total",
			Help:      "Token acquisition attempts by key and result",
		}, []string{"key", "result"}),
		LimiterWaits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_iterations_total",
			Help:      "Sleep iterations spent waiting for a token",
		}, []string{"key"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),

		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Upstream provider requests by provider, endpoint and status class",
		}, []string{"provider", "endpoint", "status"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Upstream provider request latency including limiter wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),

		NormalizedItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "items_total",
			Help:      "Normalized items by shape and outcome",
		}, []string{"shape", "outcome"}),

		RecordsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "records_stored_total",
			Help:      "Period records written by type and operation",
		}, []string{"type", "op"}),
		FilingsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "filings_skipped_total",
			Help:      "Filings skipped because they were already stored or failed to store",
		}),

		IngestionTasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tasks_total",
			Help:      "Per-ticker ingestion tasks by operation and outcome",
		}, []string{"operation", "outcome"}),
		IngestionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Duration of an orchestrator batch",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"operation"}),

		ScoringRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "requests_total",
			Help:      "Scoring calculations by template and outcome",
		}, []string{"template", "outcome"}),

		registry: reg,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Acquisition records one limiter attempt.
func (m *Metrics) Acquisition(key string, granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.LimiterAcquisitions.WithLabelValues(key, result).Inc()
}

// Waited records one limiter sleep iteration.
func (m *Metrics) Waited(key string) {
	if m == nil {
		return
	}
	m.LimiterWaits.WithLabelValues(key).Inc()
}

// CacheLookup records a cache hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ProviderRequest records one upstream call. status 0 means a transport failure.
func (m *Metrics) ProviderRequest(provider, endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.ProviderRequests.WithLabelValues(provider, endpoint, class).Inc()
	m.ProviderLatency.WithLabelValues(provider, endpoint).Observe(seconds)
}

// Normalized adds normalizer outcome counts for a shape.
func (m *Metrics) Normalized(shape string, successful, recovered, failed int) {
	if m == nil {
		return
	}
	m.NormalizedItems.WithLabelValues(shape, "successful").Add(float64(successful))
	m.NormalizedItems.WithLabelValues(shape, "recovered").Add(float64(recovered))
	m.NormalizedItems.WithLabelValues(shape, "failed").Add(float64(failed))
}

// Stored records one period record write.
func (m *Metrics) Stored(recordType, op string) {
	if m == nil {
		return
	}
	m.RecordsStored.WithLabelValues(recordType, op).Inc()
}

// FilingSkipped records a filing that produced no new record.
func (m *Metrics) FilingSkipped() {
	if m == nil {
		return
	}
	m.FilingsSkipped.Inc()
}

// Task records one orchestrator task outcome.
func (m *Metrics) Task(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.IngestionTasks.WithLabelValues(operation, outcome).Inc()
}

// Batch records the duration of an orchestrator batch.
func (m *Metrics) Batch(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.IngestionDuration.WithLabelValues(operation).Observe(seconds)
}

// Scored records one scoring calculation.
func (m *Metrics) Scored(template string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ScoringRequests.WithLabelValues(template, outcome).Inc()
}
