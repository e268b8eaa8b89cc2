package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTableMetrics() {
	r.TableCacheHits = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_table_cache_hits_total",
			Help: "Table cache lookups that found an open table",
		},
	)

	r.TableCacheMisses = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_table_cache_misses_total",
			Help: "Table cache lookups that opened and parsed a file",
		},
	)

	r.TablesOpen = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusokv_tables_open",
			Help: "Tables currently held open by the table cache",
		},
	)

	r.TableBuildsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusokv_table_builds_total",
			Help: "Table builds by outcome",
		},
		[]string{"status"},
	)

	r.TableBuildSeconds = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusokv_table_build_duration_seconds",
			Help:    "Wall time to build one table file",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.BlocksReadTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusokv_blocks_read_total",
			Help: "Data blocks fetched, by source (cache or disk)",
		},
		[]string{"source"},
	)

	r.BlocksWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_blocks_written_total",
			Help: "Data blocks emitted by table builders",
		},
	)

	r.BytesCompressed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_block_bytes_compressed_total",
			Help: "Block bytes written after compression",
		},
	)

	r.BytesUncompressed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_block_bytes_uncompressed_total",
			Help: "Block bytes before compression",
		},
	)

	r.FilterBlocksSkips = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusokv_filter_block_skips_total",
			Help: "Point reads answered negatively by a filter without a block fetch",
		},
	)
}
