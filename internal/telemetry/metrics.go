package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/coderag/internal/search"
)

const namespace = "coderag"

// Metrics holds the Prometheus collectors for ensemble search.
// Each instance owns its registry so tests and multiple servers do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	retrieverErrors *prometheus.CounterVec
	results         prometheus.Histogram
	indexDocuments  prometheus.Gauge
	indexVectors    prometheus.Gauge
}

// NewMetrics creates and registers the search collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Ensemble searches by weighting method, classified query type and status.",
		},
		[]string{"method", "query_type", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Ensemble search latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)
	retrieverErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retriever_errors_total",
			Help:      "Retriever failures that aborted an ensemble search, by source.",
		},
		[]string{"source"},
	)
	results := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of fused documents returned per successful search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
	indexDocuments := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_documents",
		Help:      "Documents in the loaded corpus.",
	})
	indexVectors := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_vectors",
		Help:      "Vectors in the loaded similarity index.",
	})

	registry.MustRegister(requests, duration, retrieverErrors, results, indexDocuments, indexVectors)

	return &Metrics{
		registry:        registry,
		requests:        requests,
		duration:        duration,
		retrieverErrors: retrieverErrors,
		results:         results,
		indexDocuments:  indexDocuments,
		indexVectors:    indexVectors,
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetIndexSize records the size of the loaded index.
func (m *Metrics) SetIndexSize(documents, vectors int) {
	m.indexDocuments.Set(float64(documents))
	m.indexVectors.Set(float64(vectors))
}

// ObserveSearch implements search.Observer.
func (m *Metrics) ObserveSearch(ev search.SearchEvent) {
	status := Status(ev.Err)

	m.requests.WithLabelValues(Method(ev), string(ev.Classified), status).Inc()
	m.duration.WithLabelValues(status).Observe(ev.Elapsed.Seconds())

	if ev.FailedSource != "" {
		m.retrieverErrors.WithLabelValues(string(ev.FailedSource)).Inc()
	}
	if ev.Err == nil {
		m.results.Observe(float64(ev.Results))
	}
}

// Method labels how the weights were chosen.
func Method(ev search.SearchEvent) string {
	if ev.Adaptive {
		return "adaptive"
	}
	return "explicit"
}

// Status is "success" or "error".
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
