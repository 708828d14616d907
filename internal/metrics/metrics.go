package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quorum"

// Metrics holds the collectors for model calls and review runs.
type Metrics struct {
	registry *prometheus.Registry

	modelCalls    *prometheus.CounterVec
	modelRetries  *prometheus.CounterVec
	modelLatency  *prometheus.HistogramVec
	modelTokens   *prometheus.CounterVec
	modelInflight prometheus.Gauge
	cacheHits     prometheus.Counter

	tasks          *prometheus.CounterVec
	comments       *prometheus.CounterVec
	reviewDuration prometheus.Histogram
	parseResults   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by backend and outcome (ok, cached, timeout, unavailable, rejected, canceled).",
		}, []string{"backend", "outcome"}),
		modelRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Retried model call attempts by backend.",
		}, []string{"backend"}),
		modelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Wall time of a model call including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"backend"}),
		modelTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the backend.",
		}, []string{"backend"}),
		modelInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_inflight_calls",
			Help:      "Model calls currently holding a concurrency slot.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cache_hits_total",
			Help:      "Model calls served from the response cache.",
		}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_tasks_total",
			Help:      "Agent review tasks by agent and status (ok, failed).",
		}, []string{"agent", "status"}),
		comments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_comments_total",
			Help:      "Comments kept after deduplication, by category.",
		}, []string{"category"}),
		reviewDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_duration_seconds",
			Help:      "Wall time of a full review run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		parseResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_parse_results_total",
			Help:      "Agent response parse outcomes (structured, heuristic, unparseable).",
		}, []string{"kind"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ModelCall records a finished model call.
func (m *Metrics) ModelCall(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(backend, outcome).Inc()
	if outcome != "cached" {
		m.modelLatency.WithLabelValues(backend).Observe(d.Seconds())
	}
}

// ModelRetry records one retried attempt.
func (m *Metrics) ModelRetry(backend string) {
	if m == nil {
		return
	}
	m.modelRetries.WithLabelValues(backend).Inc()
}

// ModelTokens adds reported token usage.
func (m *Metrics) ModelTokens(backend string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.modelTokens.WithLabelValues(backend).Add(float64(n))
}

// InflightAdd moves the in-flight gauge by delta.
func (m *Metrics) InflightAdd(delta float64) {
	if m == nil {
		return
	}
	m.modelInflight.Add(delta)
}

// CacheHit records a response served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// Task records a settled agent task.
func (m *Metrics) Task(agent string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.tasks.WithLabelValues(agent, status).Inc()
}

// Comment records a kept comment.
func (m *Metrics) Comment(category string) {
	if m == nil {
		return
	}
	m.comments.WithLabelValues(category).Inc()
}

// ReviewDuration records a finished review run.
func (m *Metrics) ReviewDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.reviewDuration.Observe(d.Seconds())
}

// ParseResult records how an agent response was interpreted.
func (m *Metrics) ParseResult(kind string) {
	if m == nil {
		return
	}
	m.parseResults.WithLabelValues(kind).Inc()
}
