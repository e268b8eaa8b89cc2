package sstable

import (
	"encoding/binary"

	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/keys"
)

// Block is a parsed, immutable sorted block. Iterators expose views into
// its buffer without copying values.
type Block struct {
	data        []byte
	restarts    int // offset of the restart array
	numRestarts int
}

// NewBlock validates the restart trailer and wraps contents.
func NewBlock(contents []byte) (*Block, error) {
	n := len(contents)
	if n < 4 {
		return nil, corruptionErr("NewBlock", "block too short for restart count")
	}
	numRestarts := int(binary.LittleEndian.Uint32(contents[n-4:]))
	if numRestarts > (n-4)/4 {
		return nil, corruptionErr("NewBlock", "restart count exceeds block size")
	}
	return &Block{
		data:        contents,
		restarts:    n - 4*(numRestarts+1),
		numRestarts: numRestarts,
	}, nil
}

// Size returns the block's byte length, used as its cache charge.
func (b *Block) Size() int64 { return int64(len(b.data)) }

// NewIterator returns an iterator over the block's entries.
func (b *Block) NewIterator(cmp keys.Comparator) iterator.Iterator {
	if b.numRestarts == 0 {
		return iterator.NewEmptyIterator(nil)
	}
	return &blockIter{
		cmp:          cmp,
		data:         b.data,
		restarts:     b.restarts,
		numRestarts:  b.numRestarts,
		current:      b.restarts,
		restartIndex: b.numRestarts,
	}
}

// blockIter decodes entries lazily. current is the offset of the current
// entry, or >= restarts when invalid. The key buffer is rebuilt through
// prefix sharing; the value is a view into the block.
type blockIter struct {
	iterator.CleanupList
	cmp         keys.Comparator
	data        []byte
	restarts    int
	numRestarts int

	current      int
	restartIndex int
	key          []byte
	valOff       int
	valLen       int
	err          error
}

func (it *blockIter) Valid() bool { return it.current < it.restarts && it.err == nil }

func (it *blockIter) Status() error { return it.err }

func (it *blockIter) Key() []byte { return it.key }

func (it *blockIter) Value() []byte { return it.data[it.valOff : it.valOff+it.valLen] }

func (it *blockIter) Close() error {
	it.RunCleanups()
	return it.err
}

// nextEntryOffset is the offset just past the current entry.
func (it *blockIter) nextEntryOffset() int {
	return it.valOff + it.valLen
}

func (it *blockIter) restartPoint(i int) int {
	return int(binary.LittleEndian.Uint32(it.data[it.restarts+4*i:]))
}

func (it *blockIter) seekToRestartPoint(i int) {
	it.key = it.key[:0]
	it.restartIndex = i
	// parseNextKey picks up from nextEntryOffset.
	it.valOff = it.restartPoint(i)
	it.valLen = 0
}

func (it *blockIter) corrupt() {
	it.current = it.restarts
	it.restartIndex = it.numRestarts
	it.key = it.key[:0]
	it.err = corruptionErr("blockIter", "bad entry in block")
}

// decodeEntry parses the three varint header fields at offset p, returning
// the header length.
func (it *blockIter) decodeEntry(p int) (shared, unshared, valLen, headerLen int, ok bool) {
	b := it.data[p:it.restarts]
	s, n1 := binary.Uvarint(b)
	if n1 <= 0 {
		return 0, 0, 0, 0, false
	}
	u, n2 := binary.Uvarint(b[n1:])
	if n2 <= 0 {
		return 0, 0, 0, 0, false
	}
	v, n3 := binary.Uvarint(b[n1+n2:])
	if n3 <= 0 {
		return 0, 0, 0, 0, false
	}
	headerLen = n1 + n2 + n3
	if uint64(len(b)-headerLen) < u+v {
		return 0, 0, 0, 0, false
	}
	return int(s), int(u), int(v), headerLen, true
}

// parseNextKey advances to the entry at nextEntryOffset.
func (it *blockIter) parseNextKey() bool {
	it.current = it.nextEntryOffset()
	if it.current >= it.restarts {
		// Past the last entry.
		it.current = it.restarts
		it.restartIndex = it.numRestarts
		return false
	}

	shared, unshared, valLen, headerLen, ok := it.decodeEntry(it.current)
	if !ok || len(it.key) < shared {
		it.corrupt()
		return false
	}

	keyOff := it.current + headerLen
	it.key = append(it.key[:shared], it.data[keyOff:keyOff+unshared]...)
	it.valOff = keyOff + unshared
	it.valLen = valLen
	for it.restartIndex+1 < it.numRestarts &&
		it.restartPoint(it.restartIndex+1) < it.current {
		it.restartIndex++
	}
	return true
}

func (it *blockIter) SeekToFirst() {
	if it.err != nil {
		return
	}
	it.seekToRestartPoint(0)
	it.parseNextKey()
}

func (it *blockIter) SeekToLast() {
	if it.err != nil {
		return
	}
	it.seekToRestartPoint(it.numRestarts - 1)
	for it.parseNextKey() && it.nextEntryOffset() < it.restarts {
	}
}

func (it *blockIter) Seek(target []byte) {
	if it.err != nil {
		return
	}

	// Binary-search the restart array for the last restart whose key is
	// before target; restart keys are stored uncompressed.
	left, right := 0, it.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		regionOffset := it.restartPoint(mid)
		shared, unshared, _, headerLen, ok := it.decodeEntry(regionOffset)
		if !ok || shared != 0 {
			it.corrupt()
			return
		}
		keyOff := regionOffset + headerLen
		midKey := it.data[keyOff : keyOff+unshared]
		if it.cmp.Compare(midKey, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	// Linear scan within the restart region.
	it.seekToRestartPoint(left)
	for it.parseNextKey() {
		if it.cmp.Compare(it.key, target) >= 0 {
			return
		}
	}
}

func (it *blockIter) Next() {
	it.parseNextKey()
}

func (it *blockIter) Prev() {
	original := it.current

	// Back up to the restart region containing an entry before current.
	for it.restartPoint(it.restartIndex) >= original {
		if it.restartIndex == 0 {
			// No entries before the first one.
			it.current = it.restarts
			it.restartIndex = it.numRestarts
			return
		}
		it.restartIndex--
	}

	it.seekToRestartPoint(it.restartIndex)
	for it.parseNextKey() && it.nextEntryOffset() < original {
	}
}
