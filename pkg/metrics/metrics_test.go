package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gatherValue(t *testing.T, r *Registry, name string) float64 {
	t.Helper()
	families, err := r.Prometheus().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			return m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("Metric %s not found", name)
	return 0
}

// TestRegistry_CountersAndGauges tests that collectors register and gather
func TestRegistry_CountersAndGauges(t *testing.T) {
	r := NewRegistry()

	r.BlockCacheHits.Inc()
	r.BlockCacheHits.Inc()
	r.BlockCacheMisses.Inc()
	r.MemtableBytes.Set(4096)
	r.TableBuildsTotal.WithLabelValues("success").Inc()
	r.BlocksReadTotal.WithLabelValues("disk").Add(3)

	if got := gatherValue(t, r, "clusokv_block_cache_hits_total"); got != 2 {
		t.Errorf("Expected 2 hits, got %v", got)
	}
	if got := gatherValue(t, r, "clusokv_block_cache_misses_total"); got != 1 {
		t.Errorf("Expected 1 miss, got %v", got)
	}
	if got := gatherValue(t, r, "clusokv_memtable_bytes"); got != 4096 {
		t.Errorf("Expected memtable gauge 4096, got %v", got)
	}
}

// TestRegistry_Isolated tests that two registries do not share state
func TestRegistry_Isolated(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.BlocksWritten.Inc()

	if got := gatherValue(t, b, "clusokv_blocks_written_total"); got != 0 {
		t.Errorf("Expected isolated registry at 0, got %v", got)
	}
}
