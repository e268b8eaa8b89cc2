package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/env"
	"github.com/dd0wney/cluso-kv/pkg/logging"
)

// TableBuilder streams sorted key-value entries into a table file. Keys
// must arrive in strictly ascending comparator order. The builder is
// single-goroutine; the surrounding system serializes each build.
//
// The first error sticks: later operations short-circuit but stay safe to
// call until Finish or Abandon.
type TableBuilder struct {
	opts Options
	file env.WritableFile

	offset     uint64
	numEntries int64
	status     error
	closed     bool
	started    time.Time

	dataBlock  *blockBuilder
	indexBlock *blockBuilder
	filter     *filterBlockBuilder
	lastKey    []byte

	// pendingIndexEntry is true iff the data block is empty and a prior
	// block was flushed; the index entry waits for the next key so the
	// separator can be shortened against it.
	pendingIndexEntry bool
	pendingHandle     BlockHandle

	compressed []byte // scratch for snappy output
}

// NewTableBuilder starts a build writing to file.
func NewTableBuilder(opts Options, file env.WritableFile) *TableBuilder {
	b := &TableBuilder{
		opts:       opts,
		file:       file,
		started:    time.Now(),
		dataBlock:  newBlockBuilder(opts.RestartInterval),
		indexBlock: newBlockBuilder(1),
	}
	if opts.FilterPolicy != nil {
		b.filter = newFilterBlockBuilder(opts.FilterPolicy)
		b.filter.StartBlock(0)
	}
	return b
}

// Add appends an entry. key must sort strictly after every key added.
func (b *TableBuilder) Add(key, value []byte) error {
	if b.closed {
		return ErrBuilderClosed
	}
	if b.status != nil {
		return b.status
	}
	if b.numEntries > 0 && b.opts.Comparator.Compare(key, b.lastKey) <= 0 {
		b.status = fmt.Errorf("%w: key %q not above last key %q",
			ErrInvalidArgument, key, b.lastKey)
		return b.status
	}

	if b.pendingIndexEntry {
		sep := b.opts.Comparator.FindShortestSeparator(b.lastKey, key)
		b.indexBlock.Add(sep, b.pendingHandle.EncodeTo(nil))
		b.pendingIndexEntry = false
	}

	if b.filter != nil {
		b.filter.AddKey(key)
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.numEntries++
	b.dataBlock.Add(key, value)

	if b.dataBlock.CurrentSizeEstimate() >= b.opts.BlockSize {
		return b.Flush()
	}
	return nil
}

// Flush cuts the current data block. Callers normally never need it; Add
// flushes on the block-size boundary.
func (b *TableBuilder) Flush() error {
	if b.closed {
		return ErrBuilderClosed
	}
	if b.status != nil {
		return b.status
	}
	if b.dataBlock.empty() {
		return nil
	}

	b.writeBlock(b.dataBlock, &b.pendingHandle)
	if b.status == nil {
		b.pendingIndexEntry = true
		b.status = b.file.Flush()
	}
	if b.filter != nil {
		b.filter.StartBlock(b.offset)
	}
	return b.status
}

// writeBlock frames and writes a finished block, recording its handle.
func (b *TableBuilder) writeBlock(block *blockBuilder, handle *BlockHandle) {
	raw := block.Finish()

	blockType := byte(noCompressionType)
	contents := raw
	if b.opts.Compression == config.SnappyCompression {
		b.compressed = snappy.Encode(b.compressed[:0], raw)
		// Keep the compressed form only if it saves at least 12.5%.
		if len(b.compressed) < len(raw)-len(raw)/8 {
			contents = b.compressed
			blockType = snappyCompressionType
		}
	}

	if b.opts.Metrics != nil {
		b.opts.Metrics.BlocksWritten.Inc()
		b.opts.Metrics.BytesUncompressed.Add(float64(len(raw)))
		b.opts.Metrics.BytesCompressed.Add(float64(len(contents)))
	}

	b.writeRawBlock(contents, blockType, handle)
	block.Reset()
}

// writeRawBlock appends contents plus the 5-byte trailer.
func (b *TableBuilder) writeRawBlock(contents []byte, blockType byte, handle *BlockHandle) {
	if b.status != nil {
		return
	}
	handle.Offset = b.offset
	handle.Size = uint64(len(contents))

	if b.status = b.file.Append(contents); b.status != nil {
		return
	}

	var trailer [blockTrailerLength]byte
	trailer[0] = blockType
	crc := crc32.Update(0, castagnoli, contents)
	crc = crc32.Update(crc, castagnoli, trailer[:1])
	binary.LittleEndian.PutUint32(trailer[1:], maskChecksum(crc))

	if b.status = b.file.Append(trailer[:]); b.status != nil {
		return
	}
	b.offset += uint64(len(contents)) + blockTrailerLength
}

// Finish flushes everything and writes the filter, metaindex, index, and
// footer. The file is complete but not synced; the caller owns Sync and
// Close.
func (b *TableBuilder) Finish() error {
	if b.closed {
		return ErrBuilderClosed
	}
	_ = b.Flush()
	b.closed = true
	if b.status != nil {
		return b.status
	}

	var filterHandle, metaindexHandle, indexHandle BlockHandle

	// Filter block, never compressed.
	if b.filter != nil {
		b.writeRawBlock(b.filter.Finish(), noCompressionType, &filterHandle)
	}

	// Metaindex block: maps the filter policy's name to its handle.
	metaindex := newBlockBuilder(b.opts.RestartInterval)
	if b.filter != nil {
		metaindex.Add([]byte("filter."+b.opts.FilterPolicy.Name()), filterHandle.EncodeTo(nil))
	}
	b.writeBlock(metaindex, &metaindexHandle)

	// Index block: one separator per data block.
	if b.status == nil {
		if b.pendingIndexEntry {
			succ := b.opts.Comparator.FindShortSuccessor(b.lastKey)
			b.indexBlock.Add(succ, b.pendingHandle.EncodeTo(nil))
			b.pendingIndexEntry = false
		}
		b.writeBlock(b.indexBlock, &indexHandle)
	}

	// Footer.
	if b.status == nil {
		footer := Footer{MetaindexHandle: metaindexHandle, IndexHandle: indexHandle}
		encoded := footer.EncodeTo(nil)
		if b.status = b.file.Append(encoded); b.status == nil {
			b.offset += uint64(len(encoded))
		}
	}

	if b.opts.Metrics != nil {
		status := "success"
		if b.status != nil {
			status = "error"
		}
		b.opts.Metrics.TableBuildsTotal.WithLabelValues(status).Inc()
		b.opts.Metrics.TableBuildSeconds.Observe(time.Since(b.started).Seconds())
	}
	if b.status == nil && b.opts.Logger != nil {
		b.opts.Logger.Debug("table finished",
			logging.Int64("entries", b.numEntries),
			logging.ByteSize("file_size", int64(b.offset)))
	}
	return b.status
}

// Abandon marks the build dead without writing further bytes; the caller
// deletes the partial file.
func (b *TableBuilder) Abandon() {
	b.closed = true
	if b.opts.Metrics != nil {
		b.opts.Metrics.TableBuildsTotal.WithLabelValues("abandoned").Inc()
	}
}

// NumEntries returns the number of entries added.
func (b *TableBuilder) NumEntries() int64 { return b.numEntries }

// FileSize returns the bytes written so far.
func (b *TableBuilder) FileSize() uint64 { return b.offset }
