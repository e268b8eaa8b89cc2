package sstable

import (
	"bytes"

	"github.com/dd0wney/cluso-kv/pkg/iterator"
)

// blockFunction turns an index entry's value (an encoded block handle)
// into an iterator over that block.
type blockFunction func(indexValue []byte) iterator.Iterator

// twoLevelIterator walks an index iterator and lazily opens an inner
// iterator for each referenced data block. Blocks load on demand: moving
// the outer level forward loads the next inner block, and exhausting the
// inner level advances the outer.
type twoLevelIterator struct {
	iterator.CleanupList
	index   iterator.Iterator
	blockFn blockFunction

	data       iterator.Iterator // nil when no block is open
	dataHandle []byte            // index value data was opened from
	err        error
}

func newTwoLevelIterator(index iterator.Iterator, blockFn blockFunction) iterator.Iterator {
	return &twoLevelIterator{index: index, blockFn: blockFn}
}

func (it *twoLevelIterator) Valid() bool {
	return it.data != nil && it.data.Valid()
}

func (it *twoLevelIterator) Seek(target []byte) {
	it.index.Seek(target)
	it.initDataBlock()
	if it.data != nil {
		it.data.Seek(target)
	}
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) SeekToFirst() {
	it.index.SeekToFirst()
	it.initDataBlock()
	if it.data != nil {
		it.data.SeekToFirst()
	}
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) SeekToLast() {
	it.index.SeekToLast()
	it.initDataBlock()
	if it.data != nil {
		it.data.SeekToLast()
	}
	it.skipEmptyDataBlocksBackward()
}

func (it *twoLevelIterator) Next() {
	it.data.Next()
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) Prev() {
	it.data.Prev()
	it.skipEmptyDataBlocksBackward()
}

func (it *twoLevelIterator) Key() []byte   { return it.data.Key() }
func (it *twoLevelIterator) Value() []byte { return it.data.Value() }

func (it *twoLevelIterator) Status() error {
	if err := it.index.Status(); err != nil {
		return err
	}
	if it.data != nil {
		if err := it.data.Status(); err != nil {
			return err
		}
	}
	return it.err
}

func (it *twoLevelIterator) Close() error {
	err := it.Status()
	it.setDataIterator(nil)
	if cerr := it.index.Close(); cerr != nil && err == nil {
		err = cerr
	}
	it.RunCleanups()
	return err
}

func (it *twoLevelIterator) skipEmptyDataBlocksForward() {
	for it.data == nil || !it.data.Valid() {
		if !it.index.Valid() {
			it.setDataIterator(nil)
			return
		}
		it.index.Next()
		it.initDataBlock()
		if it.data != nil {
			it.data.SeekToFirst()
		}
	}
}

func (it *twoLevelIterator) skipEmptyDataBlocksBackward() {
	for it.data == nil || !it.data.Valid() {
		if !it.index.Valid() {
			it.setDataIterator(nil)
			return
		}
		it.index.Prev()
		it.initDataBlock()
		if it.data != nil {
			it.data.SeekToLast()
		}
	}
}

// setDataIterator swaps the inner iterator, closing the old one so its
// cleanup hooks release any cache handle.
func (it *twoLevelIterator) setDataIterator(data iterator.Iterator) {
	if it.data != nil {
		if err := it.data.Status(); err != nil && it.err == nil {
			it.err = err
		}
		_ = it.data.Close()
	}
	it.data = data
}

func (it *twoLevelIterator) initDataBlock() {
	if !it.index.Valid() {
		it.setDataIterator(nil)
		return
	}
	handle := it.index.Value()
	if it.data != nil && bytes.Equal(handle, it.dataHandle) {
		// Already positioned in this block.
		return
	}
	it.setDataIterator(it.blockFn(handle))
	it.dataHandle = append(it.dataHandle[:0], handle...)
}
