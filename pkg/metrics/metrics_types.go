// Package metrics exposes the engine's prometheus instrumentation. A
// Registry owns every collector; callers pull the underlying
// prometheus.Registry to scrape or inspect it. There is no HTTP listener
// here: the engine is embedded, so serving is the host's business.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all engine collectors.
type Registry struct {
	registry *prometheus.Registry

	// Block cache
	BlockCacheHits      prometheus.Counter
	BlockCacheMisses    prometheus.Counter
	BlockCacheEvictions prometheus.Counter
	BlockCacheUsage     prometheus.Gauge

	// Tables
	TableCacheHits    prometheus.Counter
	TableCacheMisses  prometheus.Counter
	TablesOpen        prometheus.Gauge
	TableBuildsTotal  *prometheus.CounterVec
	TableBuildSeconds prometheus.Histogram
	BlocksReadTotal   *prometheus.CounterVec
	BlocksWritten     prometheus.Counter
	BytesCompressed   prometheus.Counter
	BytesUncompressed prometheus.Counter
	FilterBlocksSkips prometheus.Counter

	// Memtable
	MemtableBytes   prometheus.Gauge
	MemtableEntries prometheus.Gauge
}

// NewRegistry creates a registry with every engine collector registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initCacheMetrics()
	r.initTableMetrics()
	r.initMemtableMetrics()
	return r
}

// Prometheus returns the underlying registry for scraping.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}
