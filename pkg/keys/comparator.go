package keys

import (
	"bytes"
	"encoding/binary"
)

// Comparator defines a total order over byte-string keys, plus the two key
// shortening hooks the table builder uses to keep index entries small.
type Comparator interface {
	// Name identifies the order. A table built with one comparator must
	// never be read with another.
	Name() string

	// Compare returns <0, 0, >0 as a sorts before, equal to, or after b.
	Compare(a, b []byte) int

	// FindShortestSeparator returns the shortest key s with
	// start <= s < limit, given start < limit. It may return start itself.
	FindShortestSeparator(start, limit []byte) []byte

	// FindShortSuccessor returns the shortest key s with s >= key.
	FindShortSuccessor(key []byte) []byte
}

// bytewiseComparator orders keys lexicographically by unsigned byte value.
type bytewiseComparator struct{}

// BytewiseComparator returns the default comparator.
func BytewiseComparator() Comparator { return bytewiseComparator{} }

func (bytewiseComparator) Name() string { return "leveldb.BytewiseComparator" }

func (bytewiseComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

func (bytewiseComparator) FindShortestSeparator(start, limit []byte) []byte {
	// Length of the common prefix.
	n := len(start)
	if len(limit) < n {
		n = len(limit)
	}
	diff := 0
	for diff < n && start[diff] == limit[diff] {
		diff++
	}

	if diff >= n {
		// One key is a prefix of the other; start is already shortest.
		return start
	}

	c := start[diff]
	if c < 0xff && c+1 < limit[diff] {
		sep := append([]byte(nil), start[:diff+1]...)
		sep[diff]++
		return sep
	}
	return start
}

func (bytewiseComparator) FindShortSuccessor(key []byte) []byte {
	for i, c := range key {
		if c != 0xff {
			succ := append([]byte(nil), key[:i+1]...)
			succ[i]++
			return succ
		}
	}
	// Run of 0xff bytes: key is its own shortest successor.
	return key
}

// InternalKeyComparator orders internal keys by ascending user key under
// the wrapped comparator, then by descending sequence/type, so newer
// versions of a user key come first.
type InternalKeyComparator struct {
	user Comparator
}

// NewInternalKeyComparator wraps a user comparator.
func NewInternalKeyComparator(user Comparator) *InternalKeyComparator {
	return &InternalKeyComparator{user: user}
}

// UserComparator returns the wrapped comparator.
func (c *InternalKeyComparator) UserComparator() Comparator { return c.user }

func (c *InternalKeyComparator) Name() string {
	return "leveldb.InternalKeyComparator"
}

func (c *InternalKeyComparator) Compare(a, b []byte) int {
	if r := c.user.Compare(ExtractUserKey(a), ExtractUserKey(b)); r != 0 {
		return r
	}
	anum := binary.LittleEndian.Uint64(a[len(a)-8:])
	bnum := binary.LittleEndian.Uint64(b[len(b)-8:])
	switch {
	case anum > bnum:
		return -1
	case anum < bnum:
		return 1
	}
	return 0
}

func (c *InternalKeyComparator) FindShortestSeparator(start, limit []byte) []byte {
	ustart := ExtractUserKey(start)
	ulimit := ExtractUserKey(limit)
	tmp := c.user.FindShortestSeparator(ustart, ulimit)
	if len(tmp) < len(ustart) && c.user.Compare(ustart, tmp) < 0 {
		// The user key shrank; tag it with the maximal trailer so it still
		// sorts before every real entry for that user key.
		out := append([]byte(nil), tmp...)
		out = binary.LittleEndian.AppendUint64(out, PackSequenceAndType(MaxSequence, TypeForSeek))
		return out
	}
	return start
}

func (c *InternalKeyComparator) FindShortSuccessor(key []byte) []byte {
	ukey := ExtractUserKey(key)
	tmp := c.user.FindShortSuccessor(ukey)
	if len(tmp) < len(ukey) && c.user.Compare(ukey, tmp) < 0 {
		out := append([]byte(nil), tmp...)
		out = binary.LittleEndian.AppendUint64(out, PackSequenceAndType(MaxSequence, TypeForSeek))
		return out
	}
	return key
}
