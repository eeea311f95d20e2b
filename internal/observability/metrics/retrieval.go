package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.RetrievalObserver = (*RetrievalMetrics)(nil)

type RetrievalMetrics struct {
	registry *prometheus.Registry

	personaLoads      *prometheus.CounterVec
	personaLoadTime   *prometheus.HistogramVec
	embedCalls        *prometheus.CounterVec
	embedDuration     *prometheus.HistogramVec
	embedItems        *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	candidates        *prometheus.HistogramVec
	results           *prometheus.HistogramVec
	rerankFallbacks   *prometheus.CounterVec
	modelRetries      *prometheus.CounterVec
	modelBreaker      *prometheus.GaugeVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	personaLoads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "persona",
			Subsystem:   "store",
			Name:        "loads_total",
			Help:        "Persona loads by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	personaLoadTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "persona",
			Subsystem:   "store",
			Name:        "load_duration_seconds",
			Help:        "Persona load duration in seconds by outcome.",
			Buckets:     []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	embedCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "persona",
			Subsystem:   "embedder",
			Name:        "calls_total",
			Help:        "Embedding model calls by kind and status.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "status"},
	)
	embedDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "persona",
			Subsystem:   "embedder",
			Name:        "call_duration_seconds",
			Help:        "Embedding model call duration in seconds by kind.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	embedItems := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "persona",
			Subsystem:   "embedder",
			Name:        "texts_total",
			Help:        "Texts sent to the embedding model by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "persona",
			Subsystem:   "retrieval",
			Name:        "duration_seconds",
			Help:        "Facet retrieval duration in seconds, rerank included.",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		},
		[]string{"facet"},
	)
	candidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "persona",
			Subsystem:   "retrieval",
			Name:        "candidates",
			Help:        "Chunks passing the similarity threshold per facet pass.",
			Buckets:     []float64{0, 1, 2, 3, 5, 7, 10, 20, 50, 100},
			ConstLabels: constLabels,
		},
		[]string{"facet"},
	)
	results := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "persona",
			Subsystem:   "retrieval",
			Name:        "results",
			Help:        "Chunks returned per facet pass.",
			Buckets:     []float64{0, 1, 2, 3, 5, 7, 10},
			ConstLabels: constLabels,
		},
		[]string{"facet"},
	)
	rerankFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "persona",
			Subsystem:   "retrieval",
			Name:        "rerank_fallbacks_total",
			Help:        "Facet passes that fell back to coarse ranking.",
			ConstLabels: constLabels,
		},
		[]string{"facet"},
	)

	modelRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "persona",
			Subsystem:   "model",
			Name:        "retries_total",
			Help:        "Retried model calls by operation and model.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "model"},
	)
	modelBreaker := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "persona",
			Subsystem:   "model",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation and model: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "model"},
	)

	registry.MustRegister(
		personaLoads,
		personaLoadTime,
		embedCalls,
		embedDuration,
		embedItems,
		retrievalDuration,
		candidates,
		results,
		rerankFallbacks,
		modelRetries,
		modelBreaker,
	)

	return &RetrievalMetrics{
		registry:          registry,
		personaLoads:      personaLoads,
		personaLoadTime:   personaLoadTime,
		embedCalls:        embedCalls,
		embedDuration:     embedDuration,
		embedItems:        embedItems,
		retrievalDuration: retrievalDuration,
		candidates:        candidates,
		results:           results,
		rerankFallbacks:   rerankFallbacks,
		modelRetries:      modelRetries,
		modelBreaker:      modelBreaker,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for callers that add their own collectors.
func (m *RetrievalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *RetrievalMetrics) ObservePersonaLoad(outcome string, duration time.Duration) {
	m.personaLoads.WithLabelValues(outcome).Inc()
	m.personaLoadTime.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) ObserveEmbed(kind string, items int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.embedCalls.WithLabelValues(kind, status).Inc()
	m.embedDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if items > 0 {
		m.embedItems.WithLabelValues(kind).Add(float64(items))
	}
}

func (m *RetrievalMetrics) ObserveRetrieval(facet domain.Facet, candidates, results int, duration time.Duration) {
	label := string(facet)
	m.retrievalDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.candidates.WithLabelValues(label).Observe(float64(candidates))
	m.results.WithLabelValues(label).Observe(float64(results))
}

func (m *RetrievalMetrics) ObserveRerankFallback(facet domain.Facet) {
	m.rerankFallbacks.WithLabelValues(string(facet)).Inc()
}

func (m *RetrievalMetrics) ObserveModelRetry(operation, model string) {
	m.modelRetries.WithLabelValues(operation, model).Inc()
}

// ObserveModelBreaker takes gobreaker state names.
func (m *RetrievalMetrics) ObserveModelBreaker(operation, model, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.modelBreaker.WithLabelValues(operation, model).Set(value)
}
