package sstable

import (
	"encoding/binary"

	"github.com/dd0wney/cluso-kv/pkg/cache"
	"github.com/dd0wney/cluso-kv/pkg/env"
	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/logging"
)

// tableAndFile is a table cache value: the parsed table plus the open
// file it reads through. Both live exactly as long as the cache entry and
// any iterators pinning it.
type tableAndFile struct {
	file  env.RandomAccessFile
	table *Table
}

// TableCache keeps up to maxOpenFiles-10 tables open, keyed by file
// number. Iterators returned from it pin their table's entry until they
// close, so eviction never yanks a file out from under a live read.
type TableCache struct {
	fs    env.Env
	dir   string
	opts  Options
	cache *cache.Cache
}

// NewTableCache creates a table cache over dir's table files.
func NewTableCache(fs env.Env, dir string, opts Options, maxOpenFiles int) *TableCache {
	entries := maxOpenFiles - 10
	if entries < 1 {
		entries = 1
	}
	return &TableCache{
		fs:    fs,
		dir:   dir,
		opts:  opts,
		cache: cache.New(int64(entries)),
	}
}

func fileKey(fileNumber uint64) []byte {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], fileNumber)
	return key[:]
}

// findTable returns a handle to the open table for fileNumber, opening
// and parsing it on a miss. Open failures are returned, not cached, so a
// transient I/O error does not poison the slot.
func (tc *TableCache) findTable(fileNumber uint64, fileSize int64) (*cache.Handle, error) {
	key := fileKey(fileNumber)
	if h := tc.cache.Lookup(key); h != nil {
		tc.countLookup(true)
		return h, nil
	}
	tc.countLookup(false)

	name := TableFileName(tc.dir, fileNumber)
	file, err := tc.fs.NewRandomAccessFile(name)
	if err != nil {
		// Fall back to the legacy suffix.
		legacy := SSTTableFileName(tc.dir, fileNumber)
		lfile, lerr := tc.fs.NewRandomAccessFile(legacy)
		if lerr != nil {
			return nil, &TableError{Op: "findTable", File: name, Cause: err}
		}
		file = lfile
	}

	table, err := Open(tc.opts, file, fileSize)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	if tc.opts.Metrics != nil {
		tc.opts.Metrics.TablesOpen.Inc()
	}
	if tc.opts.Logger != nil {
		tc.opts.Logger.Debug("table opened", logging.FileNumber(fileNumber),
			logging.ByteSize("size", fileSize))
	}

	value := &tableAndFile{file: file, table: table}
	metrics := tc.opts.Metrics
	h := tc.cache.Insert(key, value, 1, func(_ []byte, v any) {
		tf := v.(*tableAndFile)
		_ = tf.file.Close()
		if metrics != nil {
			metrics.TablesOpen.Dec()
		}
	})
	return h, nil
}

func (tc *TableCache) countLookup(hit bool) {
	if tc.opts.Metrics == nil {
		return
	}
	if hit {
		tc.opts.Metrics.TableCacheHits.Inc()
	} else {
		tc.opts.Metrics.TableCacheMisses.Inc()
	}
}

// NewIterator returns an iterator over the given table file. The returned
// iterator keeps the table open until it is closed. The table itself is
// also returned for callers that need ApproximateOffsetOf.
func (tc *TableCache) NewIterator(fileNumber uint64, fileSize int64) (iterator.Iterator, *Table) {
	h, err := tc.findTable(fileNumber, fileSize)
	if err != nil {
		return iterator.NewEmptyIterator(err), nil
	}

	table := h.Value().(*tableAndFile).table
	it := table.NewIterator()
	it.RegisterCleanup(func() { tc.cache.Release(h) })
	return it, table
}

// Get performs a point read against one table file, forwarding the found
// entry to handler. ErrNotFound propagates from the table.
func (tc *TableCache) Get(fileNumber uint64, fileSize int64, key []byte, handler func(foundKey, value []byte)) error {
	h, err := tc.findTable(fileNumber, fileSize)
	if err != nil {
		return err
	}
	defer tc.cache.Release(h)

	return h.Value().(*tableAndFile).table.InternalGet(key, handler)
}

// Evict drops the cached table for fileNumber, e.g. after the file is
// deleted by a compaction.
func (tc *TableCache) Evict(fileNumber uint64) {
	tc.cache.Erase(fileKey(fileNumber))
}

// Close drops every unpinned table.
func (tc *TableCache) Close() {
	tc.cache.Prune()
}
