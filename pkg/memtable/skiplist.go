// Package memtable holds the engine's in-memory write buffer: a concurrent
// skiplist over encoded internal keys, backed by an arena so the whole
// table releases its memory at once when it is flushed and dropped.
package memtable

import (
	"math/rand"
	"sync/atomic"

	"github.com/dd0wney/cluso-kv/pkg/arena"
)

const (
	maxHeight = 12
	branching = 4
)

// node is a skiplist node. key is immutable after insertion; the forward
// links are published with atomic stores and read with atomic loads.
type node struct {
	key  []byte
	next []atomic.Pointer[node] // one slot per level, 0 = bottom
}

func (n *node) loadNext(level int) *node {
	return n.next[level].Load()
}

func (n *node) storeNext(level int, x *node) {
	n.next[level].Store(x)
}

// SkipList is an ordered set of byte-string keys with single-writer,
// many-reader concurrency. Readers need no locks: the writer links each
// new node bottom-up with atomic stores, and a reader that sees a grown
// max height before the upper links exist reads nil there and simply
// descends a level.
type SkipList struct {
	compare func(a, b []byte) int
	arena   *arena.Arena
	head    *node
	height  atomic.Int32 // current max height, in [1, maxHeight]
	rnd     *rand.Rand
}

// NewSkipList creates an empty list. Keys inserted must be distinct under
// compare; key bytes are copied into the arena.
func NewSkipList(compare func(a, b []byte) int, a *arena.Arena) *SkipList {
	s := &SkipList{
		compare: compare,
		arena:   a,
		head:    newNode(nil, maxHeight),
		rnd:     rand.New(rand.NewSource(0xdeadbeef)),
	}
	s.height.Store(1)
	return s
}

func newNode(key []byte, height int) *node {
	return &node{
		key:  key,
		next: make([]atomic.Pointer[node], height),
	}
}

// randomHeight picks a height with P(height >= h) = branching^-(h-1),
// capped at maxHeight.
func (s *SkipList) randomHeight() int {
	height := 1
	for height < maxHeight && s.rnd.Intn(branching) == 0 {
		height++
	}
	return height
}

// keyIsAfterNode reports whether key sorts after n's key. A nil node (the
// end of a level) sorts after every key.
func (s *SkipList) keyIsAfterNode(key []byte, n *node) bool {
	return n != nil && s.compare(n.key, key) < 0
}

// findGreaterOrEqual returns the first node >= key, recording the
// predecessor at every level in prev when it is non-nil.
func (s *SkipList) findGreaterOrEqual(key []byte, prev []*node) *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for {
		next := x.loadNext(level)
		if s.keyIsAfterNode(key, next) {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan returns the last node < key, or the head if none.
func (s *SkipList) findLessThan(key []byte) *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for {
		next := x.loadNext(level)
		if next != nil && s.compare(next.key, key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// findLast returns the last node, or the head if the list is empty.
func (s *SkipList) findLast() *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for {
		next := x.loadNext(level)
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// Insert adds key to the list. The caller serializes writers; readers may
// run concurrently. key must not equal any inserted key.
func (s *SkipList) Insert(key []byte) {
	prev := make([]*node, maxHeight)
	s.findGreaterOrEqual(key, prev)

	stored := s.arena.Allocate(len(key))
	copy(stored, key)

	height := s.randomHeight()
	if cur := int(s.height.Load()); height > cur {
		for i := cur; i < height; i++ {
			prev[i] = s.head
		}
		// Publishing the new height before the new levels are linked is
		// harmless: readers find nil there and drop down.
		s.height.Store(int32(height))
	}

	x := newNode(stored, height)
	for i := 0; i < height; i++ {
		// The node's own link is set before the node becomes reachable at
		// this level.
		x.storeNext(i, prev[i].loadNext(i))
		prev[i].storeNext(i, x)
	}
}

// Contains reports whether key is in the list.
func (s *SkipList) Contains(key []byte) bool {
	x := s.findGreaterOrEqual(key, nil)
	return x != nil && s.compare(x.key, key) == 0
}

// ListIterator walks a skiplist. It is single-goroutine but may run
// concurrently with the writer and other iterators.
type ListIterator struct {
	list *SkipList
	node *node
}

// NewListIterator returns an iterator positioned before the first key.
func (s *SkipList) NewListIterator() *ListIterator {
	return &ListIterator{list: s}
}

// Valid reports whether the iterator is at a key.
func (it *ListIterator) Valid() bool { return it.node != nil }

// Key returns the current key. Requires Valid.
func (it *ListIterator) Key() []byte { return it.node.key }

// Next advances to the next key. Requires Valid.
func (it *ListIterator) Next() {
	it.node = it.node.loadNext(0)
}

// Prev moves to the previous key by re-searching; nodes only carry forward
// links. Requires Valid.
func (it *ListIterator) Prev() {
	it.node = it.list.findLessThan(it.node.key)
	if it.node == it.list.head {
		it.node = nil
	}
}

// Seek positions at the first key >= target.
func (it *ListIterator) Seek(target []byte) {
	it.node = it.list.findGreaterOrEqual(target, nil)
}

// SeekToFirst positions at the first key.
func (it *ListIterator) SeekToFirst() {
	it.node = it.list.head.loadNext(0)
}

// SeekToLast positions at the last key.
func (it *ListIterator) SeekToLast() {
	it.node = it.list.findLast()
	if it.node == it.list.head {
		it.node = nil
	}
}
