package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_fetch_requests_total",
		Help: "Total number of tile fetches by source",
	}, []string{"source"})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_fetch_failures_total",
		Help: "Total number of failed tile loads by stage",
	}, []string{"stage"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tileview_fetch_latency_seconds",
		Help:    "Latency of tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_cache_hits_total",
		Help: "Total number of byte cache hits",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_cache_misses_total",
		Help: "Total number of byte cache misses",
	}, []string{"cache"})

	// Redis metrics
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tileview_load_queue_depth",
		Help: "Number of tiles waiting in the load queue",
	})

	TilesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileview_tiles_created_total",
		Help: "Total number of tiles created by cache refreshes",
	})

	TilesDisposed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileview_tiles_disposed_total",
		Help: "Total number of tiles evicted from the cache",
	})

	TilesReady = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileview_tiles_ready_total",
		Help: "Total number of tiles that finished loading",
	})

	TilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileview_tiles_failed_total",
		Help: "Total number of tiles whose load failed",
	})
)
