// Command kv-bench exercises the write and read paths end to end: it
// fills a memtable, flushes it through the table builder, then reads the
// file back through the table cache, reporting throughput and cache
// behavior for each phase.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/env"
	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/keys"
	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/memtable"
	"github.com/dd0wney/cluso-kv/pkg/sstable"
)

func main() {
	n := flag.Int("n", 100000, "number of keys")
	valueSize := flag.Int("value-size", 100, "value bytes per key")
	dir := flag.String("dir", "./data/kv-bench", "working directory")
	cfgPath := flag.String("config", "", "optional engine config YAML")
	flag.Parse()

	runID := uuid.New().String()

	var cfg config.Config
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
		cfg.DataDir = *dir
	} else {
		cfg = config.Default(*dir)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create %s: %v", cfg.DataDir, err)
	}

	logger := logging.NewDefaultLogger().With(
		logging.String("run_id", runID),
		logging.String("component", "kv-bench"),
	)

	icmp := keys.NewInternalKeyComparator(keys.BytewiseComparator())
	opts := sstable.NewOptions(cfg, icmp)
	opts.Logger = logger

	value := make([]byte, *valueSize)
	rand.New(rand.NewSource(42)).Read(value)

	// Phase 1: memtable fill.
	mt := memtable.NewWithMetrics(icmp, opts.Metrics)
	start := time.Now()
	for i := 0; i < *n; i++ {
		key := fmt.Sprintf("key%012d", i)
		mt.Add(uint64(i+1), keys.TypeValue, []byte(key), value)
	}
	fillDur := time.Since(start)
	logger.Info("memtable filled",
		logging.Int("keys", *n),
		logging.ByteSize("arena_bytes", mt.ApproximateMemoryUsage()),
		logging.Duration(fillDur))
	fmt.Printf("fill:   %d keys in %v (%.0f ops/sec)\n",
		*n, fillDur, float64(*n)/fillDur.Seconds())

	// Phase 2: flush through the table builder.
	const fileNumber = 1
	name := sstable.TableFileName(cfg.DataDir, fileNumber)
	fs := env.Default()
	w, err := fs.NewWritableFile(name)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", name, err)
	}

	start = time.Now()
	builder := sstable.NewTableBuilder(opts, w)
	it := mt.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := builder.Add(it.Key(), it.Value()); err != nil {
			log.Fatalf("Builder add failed: %v", err)
		}
	}
	_ = it.Close()
	if err := builder.Finish(); err != nil {
		log.Fatalf("Builder finish failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Close failed: %v", err)
	}
	flushDur := time.Since(start)
	logger.Info("table flushed",
		logging.FileNumber(fileNumber),
		logging.ByteSize("file_size", int64(builder.FileSize())),
		logging.Duration(flushDur))
	fmt.Printf("flush:  %d bytes in %v\n", builder.FileSize(), flushDur)

	// Phase 3: random point reads through the table cache.
	tc := sstable.NewTableCache(fs, cfg.DataDir, opts, cfg.MaxOpenFiles)
	defer tc.Close()

	size := int64(builder.FileSize())
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	reads := *n / 10
	if reads > 100000 {
		reads = 100000
	}

	start = time.Now()
	hitCount := 0
	for i := 0; i < reads; i++ {
		idx := rnd.Intn(*n)
		lk := keys.NewLookupKey([]byte(fmt.Sprintf("key%012d", idx)), uint64(*n+1))
		err := tc.Get(fileNumber, size, lk.InternalKey(), func(k, v []byte) { hitCount++ })
		if err != nil {
			log.Fatalf("Read failed for key %d: %v", idx, err)
		}
	}
	readDur := time.Since(start)
	if hitCount != reads {
		log.Fatalf("Expected %d hits, got %d", reads, hitCount)
	}
	fmt.Printf("read:   %d gets in %v (%.0f ops/sec)\n",
		reads, readDur, float64(reads)/readDur.Seconds())

	// Phase 4: merged scan over a fresh memtable overlay plus the table,
	// the shape the version layer stacks sources in.
	overlay := memtable.New(icmp)
	overwrites := *n / 100
	if overwrites < 1 {
		overwrites = 1
	}
	for i := 0; i < overwrites; i++ {
		key := fmt.Sprintf("key%012d", rnd.Intn(*n))
		overlay.Add(uint64(*n+i+1), keys.TypeValue, []byte(key), value)
	}

	tableIter, _ := tc.NewIterator(fileNumber, size)
	merged := iterator.NewMergingIterator(icmp, overlay.NewIterator(), tableIter)

	start = time.Now()
	entries := 0
	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		entries++
	}
	if err := merged.Status(); err != nil {
		log.Fatalf("Merged scan failed: %v", err)
	}
	if err := merged.Close(); err != nil {
		log.Fatalf("Merged scan close failed: %v", err)
	}
	scanDur := time.Since(start)
	if entries != *n+overwrites {
		log.Fatalf("Expected %d merged entries, got %d", *n+overwrites, entries)
	}
	fmt.Printf("scan:   %d entries in %v (%.0f entries/sec)\n",
		entries, scanDur, float64(entries)/scanDur.Seconds())

	hits, misses := opts.BlockCache.Stats()
	fmt.Printf("cache:  %d hits, %d misses, %d bytes resident\n",
		hits, misses, opts.BlockCache.TotalCharge())

	logger.Info("benchmark complete",
		logging.Int("reads", reads),
		logging.Int("scanned", entries),
		logging.Int64("cache_hits", hits),
		logging.Int64("cache_misses", misses),
		logging.Duration(readDur))
}
