package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_cache_hits_total",
		Help: "Total number of cache hits by cache name",
	}, []string{"cache"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_cache_misses_total",
		Help: "Total number of cache misses by cache name",
	}, []string{"cache"})

	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sprint_cache_entries",
		Help: "Current number of entries held by cache name",
	}, []string{"cache"})
)

// IncCacheHit records a cache hit.
func IncCacheHit(cache string) {
	cacheHitsTotal.WithLabelValues(cache).Inc()
}

// IncCacheMiss records a cache miss.
func IncCacheMiss(cache string) {
	cacheMissesTotal.WithLabelValues(cache).Inc()
}

// SetCacheEntries publishes the current entry count for a cache.
func SetCacheEntries(cache string, n int) {
	cacheEntries.WithLabelValues(cache).Set(float64(n))
}
