// Package metrics exposes Prometheus instruments for the memory engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every instrument on a single registry so tests can build
// isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RetrievalStages *prometheus.CounterVec
	MemoriesStored  prometheus.Counter
	BatchItems      *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engram_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RetrievalStages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_retrieval_stage_total",
			Help: "Retrieval cascade resolutions by winning stage.",
		}, []string{"stage"}),
		MemoriesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_memories_stored_total",
			Help: "Memories written, single and batch combined.",
		}),
		BatchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_batch_items_total",
			Help: "Batch operation items by outcome.",
		}, []string{"operation", "outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_cache_hits_total",
			Help: "Memory cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "engram_cache_misses_total",
			Help: "Memory cache misses.",
		}),
	}
}
