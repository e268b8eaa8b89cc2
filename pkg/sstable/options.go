package sstable

import (
	"github.com/dd0wney/cluso-kv/pkg/cache"
	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/keys"
	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// Options carries everything builders and readers need. Build one with
// NewOptions so the optional fields are never nil.
type Options struct {
	// Comparator orders keys within blocks and across the table.
	Comparator keys.Comparator

	// BlockSize is the uncompressed flush threshold for data blocks.
	BlockSize int

	// RestartInterval is the entry spacing of data-block restart points.
	// Index blocks always use an interval of 1.
	RestartInterval int

	// Compression selects the data-block codec.
	Compression config.Compression

	// FilterPolicy builds the table's filter block; nil disables filters.
	FilterPolicy FilterPolicy

	// BlockCache holds decoded data blocks across readers.
	BlockCache *cache.Cache

	// VerifyChecksums controls CRC verification on every block read.
	VerifyChecksums bool

	// Logger receives build and read-path events.
	Logger logging.Logger

	// Metrics receives engine instrumentation.
	Metrics *metrics.Registry
}

// NewOptions derives table options from an engine config. The block cache
// it builds reports into the same registry the rest of the read path uses.
func NewOptions(cfg config.Config, cmp keys.Comparator) Options {
	var policy FilterPolicy
	if cfg.BloomBitsPerKey > 0 {
		policy = NewBloomFilterPolicy(cfg.BloomBitsPerKey)
		if _, ok := cmp.(*keys.InternalKeyComparator); ok {
			policy = NewInternalFilterPolicy(policy)
		}
	}
	reg := metrics.NewRegistry()
	return Options{
		Comparator:      cmp,
		BlockSize:       cfg.BlockSize,
		RestartInterval: cfg.RestartInterval,
		Compression:     cfg.Compression,
		FilterPolicy:    policy,
		BlockCache:      cache.NewWithMetrics(cfg.BlockCacheCapacity, reg),
		VerifyChecksums: true,
		Logger:          logging.NewNopLogger(),
		Metrics:         reg,
	}
}
