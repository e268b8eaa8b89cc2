package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initMemtableMetrics() {
	r.MemtableBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusokv_memtable_bytes",
			Help: "Approximate arena bytes held by the active memtable",
		},
	)

	r.MemtableEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusokv_memtable_entries",
			Help: "Entries in the active memtable",
		},
	)
}
