package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCacheMetrics() {
	r.BlockCacheHits = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_block_cache_hits_total",
			Help: "Block cache lookups served from memory",
		},
	)

	r.BlockCacheMisses = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_block_cache_misses_total",
			Help: "Block cache lookups that fell through to disk",
		},
	)

	r.BlockCacheEvictions = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_block_cache_evictions_total",
			Help: "Entries evicted from the block cache",
		},
	)

	r.BlockCacheUsage = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusokv_block_cache_usage_bytes",
			Help: "Sum of charges of resident block cache entries",
		},
	)
}
