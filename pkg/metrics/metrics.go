// Package metrics exposes Prometheus instrumentation for the retrieval
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors. A nil *Metrics is safe to call;
// every method no-ops.
type Metrics struct {
	registry *prometheus.Registry

	retrievalRequests *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	stageCandidates   *prometheus.HistogramVec
	backendErrors     *prometheus.CounterVec
	entriesIngested   prometheus.Counter
	documentsIngested prometheus.Counter
}

// New creates a Metrics bundle on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		retrievalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "retrieval_requests_total",
			Help:      "Retrieval requests by the tier that served them.",
		}, []string{"tier"}),
		retrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recall",
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval latency by serving tier.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),
		stageCandidates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recall",
			Name:      "stage_candidates",
			Help:      "Candidate counts as the pipeline narrows them.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"stage"}),
		backendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "backend_errors_total",
			Help:      "Backend failures that triggered tier fallback.",
		}, []string{"backend"}),
		entriesIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "entries_ingested_total",
			Help:      "Context entries accepted by the ingestion facade.",
		}),
		documentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "documents_ingested_total",
			Help:      "Documents indexed into the knowledge graph.",
		}),
	}
}

// Handler serves the registry over HTTP for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRetrieval records one served retrieval request.
func (m *Metrics) ObserveRetrieval(tier string, seconds float64) {
	if m == nil {
		return
	}
	m.retrievalRequests.WithLabelValues(tier).Inc()
	m.retrievalDuration.WithLabelValues(tier).Observe(seconds)
}

// ObserveStage records the candidate count at one pipeline stage.
func (m *Metrics) ObserveStage(stage string, count int) {
	if m == nil {
		return
	}
	m.stageCandidates.WithLabelValues(stage).Observe(float64(count))
}

// BackendError counts a backend failure.
func (m *Metrics) BackendError(backend string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend).Inc()
}

// EntryIngested counts one accepted context entry.
func (m *Metrics) EntryIngested() {
	if m == nil {
		return
	}
	m.entriesIngested.Inc()
}

// DocumentIngested counts one indexed graph document.
func (m *Metrics) DocumentIngested() {
	if m == nil {
		return
	}
	m.documentsIngested.Inc()
}
