package sstable

import (
	"encoding/binary"
)

// Filter block layout: the concatenated filter payloads, then a u32 start
// offset per filter, then the u32 offset of that array, then one byte with
// the base log. Filter i covers the data blocks whose file offset is in
// [i<<baseLog, (i+1)<<baseLog).
const filterBaseLog = 11 // one filter per 2 KiB of data-block file space

// filterBlockBuilder accumulates the keys of each data block and cuts
// filters as the data stream crosses 2 KiB boundaries.
type filterBlockBuilder struct {
	policy  FilterPolicy
	keys    [][]byte // pending keys since the last generated filter
	result  []byte   // filter payloads so far
	offsets []uint32 // start of each generated filter within result
}

func newFilterBlockBuilder(policy FilterPolicy) *filterBlockBuilder {
	return &filterBlockBuilder{policy: policy}
}

// StartBlock notes that the next data block begins at blockOffset,
// generating one filter per crossed 2 KiB window. Windows containing no
// block boundary get empty filters, which match nothing.
func (b *filterBlockBuilder) StartBlock(blockOffset uint64) {
	filterIndex := int(blockOffset >> filterBaseLog)
	for len(b.offsets) < filterIndex {
		b.generateFilter()
	}
}

// AddKey records a key for the filter covering the current data block.
func (b *filterBlockBuilder) AddKey(key []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
}

func (b *filterBlockBuilder) generateFilter() {
	b.offsets = append(b.offsets, uint32(len(b.result)))
	if len(b.keys) == 0 {
		// Empty window: zero-length filter.
		return
	}
	b.result = b.policy.CreateFilter(b.keys, b.result)
	b.keys = b.keys[:0]
}

// Finish emits any pending filter and the offset trailer, returning the
// complete filter block.
func (b *filterBlockBuilder) Finish() []byte {
	if len(b.keys) > 0 {
		b.generateFilter()
	}

	arrayOffset := uint32(len(b.result))
	for _, off := range b.offsets {
		b.result = binary.LittleEndian.AppendUint32(b.result, off)
	}
	b.result = binary.LittleEndian.AppendUint32(b.result, arrayOffset)
	b.result = append(b.result, filterBaseLog)
	return b.result
}

// filterBlockReader answers per-block membership queries. A malformed
// filter block fails open: every query reports a possible match and reads
// proceed to the data block.
type filterBlockReader struct {
	policy  FilterPolicy
	data    []byte
	offsets int // offset of the u32 offset array
	num     int
	baseLog uint
}

func newFilterBlockReader(policy FilterPolicy, contents []byte) *filterBlockReader {
	r := &filterBlockReader{policy: policy}
	n := len(contents)
	if n < 5 {
		return r
	}
	baseLog := uint(contents[n-1])
	lastWord := int(binary.LittleEndian.Uint32(contents[n-5:]))
	if lastWord > n-5 {
		return r
	}
	r.data = contents
	r.baseLog = baseLog
	r.offsets = lastWord
	r.num = (n - 5 - lastWord) / 4
	return r
}

// KeyMayMatch reports whether key may be present in the data block that
// starts at blockOffset.
func (r *filterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	index := int(blockOffset >> r.baseLog)
	if r.data == nil || index >= r.num {
		// Out of range or unparsed: err on the side of a block read.
		return true
	}

	start := int(binary.LittleEndian.Uint32(r.data[r.offsets+4*index:]))
	limit := int(binary.LittleEndian.Uint32(r.data[r.offsets+4*(index+1):]))
	if start == limit {
		// Empty filter covers no keys.
		return false
	}
	if start < limit && limit <= r.offsets {
		return r.policy.KeyMayMatch(key, r.data[start:limit])
	}
	// Inconsistent offsets: fail open.
	return true
}
