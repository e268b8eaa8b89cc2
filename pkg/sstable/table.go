package sstable

import (
	"encoding/binary"

	"github.com/dd0wney/cluso-kv/pkg/env"
	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/keys"
	"github.com/dd0wney/cluso-kv/pkg/logging"
)

// Table is an open, parsed table file. It is immutable and safe for
// concurrent readers; each iterator is single-goroutine.
type Table struct {
	opts    Options
	file    env.RandomAccessFile
	cacheID uint64

	indexBlock      *Block
	filter          *filterBlockReader
	metaindexOffset uint64
}

// Open parses the footer and index of a table file of the given size. The
// table holds file for its lifetime; the caller closes it after the table
// is no longer in use.
func Open(opts Options, file env.RandomAccessFile, size int64) (*Table, error) {
	if size < footerLength {
		return nil, corruptionErr("Open", "file is too short to be an sstable")
	}

	footerBytes := make([]byte, footerLength)
	if _, err := file.ReadAt(footerBytes, size-footerLength); err != nil {
		return nil, &TableError{Op: "Open", Cause: err}
	}
	footer, err := DecodeFooter(footerBytes)
	if err != nil {
		return nil, err
	}

	indexContents, err := readBlock(file, footer.IndexHandle, opts.VerifyChecksums)
	if err != nil {
		return nil, err
	}
	indexBlock, err := NewBlock(indexContents)
	if err != nil {
		return nil, err
	}

	t := &Table{
		opts:            opts,
		file:            file,
		indexBlock:      indexBlock,
		metaindexOffset: footer.MetaindexHandle.Offset,
	}
	if opts.BlockCache != nil {
		t.cacheID = opts.BlockCache.NewID()
	}
	t.readMeta(footer)
	return t, nil
}

// readMeta loads the filter block. Any failure here is fail-open: the
// table works without a filter, it just reads more blocks.
func (t *Table) readMeta(footer Footer) {
	if t.opts.FilterPolicy == nil {
		return
	}

	contents, err := readBlock(t.file, footer.MetaindexHandle, t.opts.VerifyChecksums)
	if err != nil {
		t.warnMeta(err)
		return
	}
	meta, err := NewBlock(contents)
	if err != nil {
		t.warnMeta(err)
		return
	}

	it := meta.NewIterator(keys.BytewiseComparator())
	defer it.Close()
	name := []byte("filter." + t.opts.FilterPolicy.Name())
	it.Seek(name)
	if it.Valid() && string(it.Key()) == string(name) {
		t.readFilter(it.Value())
	}
}

func (t *Table) readFilter(handleEncoded []byte) {
	handle, _, err := DecodeBlockHandle(handleEncoded)
	if err != nil {
		t.warnMeta(err)
		return
	}
	contents, err := readBlock(t.file, handle, t.opts.VerifyChecksums)
	if err != nil {
		t.warnMeta(err)
		return
	}
	t.filter = newFilterBlockReader(t.opts.FilterPolicy, contents)
}

func (t *Table) warnMeta(err error) {
	if t.opts.Logger != nil {
		t.opts.Logger.Warn("filter block unavailable, reads fall through",
			logging.Err(err))
	}
}

// cacheKey is ⟨cache id, block offset⟩, fixed width so it never collides
// across tables sharing the cache.
func (t *Table) cacheKey(offset uint64) []byte {
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], t.cacheID)
	binary.LittleEndian.PutUint64(key[8:], offset)
	return key[:]
}

// blockIterator opens an iterator over the data block named by an index
// entry, consulting the block cache first.
func (t *Table) blockIterator(indexValue []byte) iterator.Iterator {
	handle, _, err := DecodeBlockHandle(indexValue)
	if err != nil {
		return iterator.NewEmptyIterator(err)
	}

	bcache := t.opts.BlockCache
	if bcache == nil {
		block, err := t.loadBlock(handle)
		if err != nil {
			return iterator.NewEmptyIterator(err)
		}
		return block.NewIterator(t.opts.Comparator)
	}

	key := t.cacheKey(handle.Offset)
	if h := bcache.Lookup(key); h != nil {
		t.countBlockRead("cache")
		it := h.Value().(*Block).NewIterator(t.opts.Comparator)
		it.RegisterCleanup(func() { bcache.Release(h) })
		return it
	}

	block, err := t.loadBlock(handle)
	if err != nil {
		return iterator.NewEmptyIterator(err)
	}
	t.countBlockRead("disk")
	h := bcache.Insert(key, block, block.Size(), func([]byte, any) {
		// Block memory is garbage collected; the entry itself is the
		// only resource.
	})
	it := block.NewIterator(t.opts.Comparator)
	it.RegisterCleanup(func() { bcache.Release(h) })
	return it
}

func (t *Table) loadBlock(handle BlockHandle) (*Block, error) {
	contents, err := readBlock(t.file, handle, t.opts.VerifyChecksums)
	if err != nil {
		return nil, err
	}
	return NewBlock(contents)
}

func (t *Table) countBlockRead(source string) {
	if t.opts.Metrics != nil {
		t.opts.Metrics.BlocksReadTotal.WithLabelValues(source).Inc()
	}
}

// NewIterator returns a two-level iterator over the whole table.
func (t *Table) NewIterator() iterator.Iterator {
	return newTwoLevelIterator(
		t.indexBlock.NewIterator(t.opts.Comparator),
		t.blockIterator,
	)
}

// InternalGet seeks key and, when the entry it lands on shares the query's
// user key, passes it to handler. The filter block is consulted first so
// most absent keys never touch a data block. Returns ErrNotFound when
// handler was not invoked.
func (t *Table) InternalGet(key []byte, handler func(foundKey, value []byte)) error {
	indexIter := t.indexBlock.NewIterator(t.opts.Comparator)
	defer indexIter.Close()

	indexIter.Seek(key)
	if !indexIter.Valid() {
		if err := indexIter.Status(); err != nil {
			return err
		}
		return ErrNotFound
	}

	handle, _, err := DecodeBlockHandle(indexIter.Value())
	if err != nil {
		return err
	}

	if t.filter != nil && !t.filter.KeyMayMatch(handle.Offset, key) {
		if t.opts.Metrics != nil {
			t.opts.Metrics.FilterBlocksSkips.Inc()
		}
		return ErrNotFound
	}

	blockIter := t.blockIterator(indexIter.Value())
	defer blockIter.Close()

	blockIter.Seek(key)
	if !blockIter.Valid() {
		if err := blockIter.Status(); err != nil {
			return err
		}
		return ErrNotFound
	}
	if !t.sameUserKey(blockIter.Key(), key) {
		return ErrNotFound
	}
	handler(blockIter.Key(), blockIter.Value())
	return nil
}

// sameUserKey compares the user-key portion when the table orders
// internal keys, and whole keys otherwise.
func (t *Table) sameUserKey(a, b []byte) bool {
	if ikc, ok := t.opts.Comparator.(*keys.InternalKeyComparator); ok {
		return ikc.UserComparator().Compare(keys.ExtractUserKey(a), keys.ExtractUserKey(b)) == 0
	}
	return t.opts.Comparator.Compare(a, b) == 0
}

// ApproximateOffsetOf estimates the file offset where key's data lives.
// Keys past the last entry map to the metaindex offset, which follows the
// data blocks and the filter block.
func (t *Table) ApproximateOffsetOf(key []byte) uint64 {
	it := t.indexBlock.NewIterator(t.opts.Comparator)
	defer it.Close()

	it.Seek(key)
	if it.Valid() {
		if handle, _, err := DecodeBlockHandle(it.Value()); err == nil {
			return handle.Offset
		}
	}
	return t.metaindexOffset
}
