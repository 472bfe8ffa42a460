package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for memhub
type Metrics struct {
	// Memory store metrics
	EntriesCreated *prometheus.CounterVec
	EntriesListed  *prometheus.CounterVec

	// Retrieval metrics
	RetrievalsTotal   *prometheus.CounterVec
	RetrievalFallback *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	ContextSignals    *prometheus.HistogramVec

	// Workflow metrics
	WorkflowCompletions *prometheus.CounterVec
	DuplicatePushes     *prometheus.CounterVec

	// Composition metrics
	Compositions *prometheus.CounterVec

	// System metrics
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	EventsPublished     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			EntriesCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_entries_created_total",
					Help: "Number of memory entries created",
				},
				[]string{"project_id", "lesson_category", "task_type"},
			),
			EntriesListed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_entries_listed_total",
					Help: "Number of memory list queries served",
				},
				[]string{"project_id"},
			),
			RetrievalsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_retrievals_total",
					Help: "Number of retrieval requests served",
				},
				[]string{"project_id"},
			),
			RetrievalFallback: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_retrieval_fallback_total",
					Help: "Number of retrievals that used a fallback ordering",
				},
				[]string{"project_id"},
			),
			RetrievalDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memhub_retrieval_duration_seconds",
					Help:    "Duration of retrieval ranking in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
				[]string{"project_id"},
			),
			ContextSignals: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memhub_retrieval_context_signals",
					Help:    "Number of context signals supplied per retrieval",
					Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 to 5
				},
				[]string{"project_id"},
			),
			WorkflowCompletions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_workflow_completions_total",
					Help: "Number of ticket-finish memory pushes recorded",
				},
				[]string{"project_id", "to_status"},
			),
			DuplicatePushes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_duplicate_pushes_total",
					Help: "Number of inserts rejected for an already-used id",
				},
				[]string{"project_id"},
			),
			Compositions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_compositions_total",
					Help: "Number of composed artifacts by kind",
				},
				[]string{"kind"},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "memhub_cache_hits_total",
					Help: "Number of cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "memhub_cache_misses_total",
					Help: "Number of cache misses",
				},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_events_published_total",
					Help: "Number of events published to the message bus",
				},
				[]string{"subject"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memhub_http_requests_total",
					Help: "Number of HTTP requests by endpoint and status",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memhub_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}
