package memtable

import (
	"encoding/binary"
	"errors"

	"github.com/dd0wney/cluso-kv/pkg/arena"
	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/keys"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// ErrNotFound is returned by Get for a key whose newest visible entry is a
// deletion tombstone.
var ErrNotFound = errors.New("memtable: key not found")

// MemTable is the in-memory write buffer. One writer calls Add at a time;
// Get and iterators are safe concurrently with the writer.
//
// Each skiplist entry encodes one mutation:
//
//	varint32   internal key length
//	bytes      user key
//	fixed64    sequence<<8 | type
//	varint32   value length
//	bytes      value
type MemTable struct {
	cmp     *keys.InternalKeyComparator
	aren    *arena.Arena
	list    *SkipList
	metrics *metrics.Registry // nil when unobserved
}

// New creates an empty memtable ordering entries with cmp.
func New(cmp *keys.InternalKeyComparator) *MemTable {
	return NewWithMetrics(cmp, nil)
}

// NewWithMetrics creates a memtable that keeps reg's memtable gauges
// current as it grows. Use for the active memtable; a table being flushed
// no longer reports.
func NewWithMetrics(cmp *keys.InternalKeyComparator, reg *metrics.Registry) *MemTable {
	a := arena.New()
	m := &MemTable{cmp: cmp, aren: a, metrics: reg}
	m.list = NewSkipList(m.compareEntries, a)
	return m
}

// compareEntries orders length-prefixed internal keys.
func (m *MemTable) compareEntries(a, b []byte) int {
	return m.cmp.Compare(decodeLengthPrefixed(a), decodeLengthPrefixed(b))
}

// decodeLengthPrefixed strips a varint length prefix and returns that many
// bytes.
func decodeLengthPrefixed(b []byte) []byte {
	n, w := binary.Uvarint(b)
	return b[w : w+int(n)]
}

// ApproximateMemoryUsage reports the bytes owned by the table's arena.
// Safe to call concurrently with Add.
func (m *MemTable) ApproximateMemoryUsage() int64 {
	return m.aren.MemoryUsage()
}

// Add inserts a mutation. Entries are made unique by their sequence
// number, so the skiplist never sees equal keys.
func (m *MemTable) Add(seq uint64, t keys.ValueType, userKey, value []byte) {
	internalLen := len(userKey) + 8
	encoded := make([]byte, 0, 5+internalLen+5+len(value))
	encoded = binary.AppendUvarint(encoded, uint64(internalLen))
	encoded = keys.AppendInternalKey(encoded, userKey, seq, t)
	encoded = binary.AppendUvarint(encoded, uint64(len(value)))
	encoded = append(encoded, value...)
	m.list.Insert(encoded)

	if m.metrics != nil {
		m.metrics.MemtableEntries.Inc()
		m.metrics.MemtableBytes.Set(float64(m.aren.MemoryUsage()))
	}
}

// Get looks up the newest entry visible at lk's snapshot. It returns
// (value, true, nil) for a live entry, (nil, true, ErrNotFound) when that
// entry is a tombstone, and (nil, false, nil) when this table holds no
// entry for the user key — the caller then falls through to older tables.
//
// The snapshot filter lives entirely in the lookup key: the seek lands on
// the first entry at or below the snapshot sequence, and no sequence
// inspection happens afterwards.
func (m *MemTable) Get(lk *keys.LookupKey) (value []byte, found bool, err error) {
	it := m.list.NewListIterator()
	it.Seek(lk.MemtableKey())
	if !it.Valid() {
		return nil, false, nil
	}

	entry := it.Key()
	ikey := decodeLengthPrefixed(entry)
	parsed, ok := keys.ParseInternalKey(ikey)
	if !ok {
		return nil, false, nil
	}
	if m.cmp.UserComparator().Compare(parsed.UserKey, lk.UserKey()) != 0 {
		return nil, false, nil
	}

	switch parsed.Type {
	case keys.TypeValue:
		rest := entry[uvarintLen(uint64(len(ikey)))+len(ikey):]
		return decodeLengthPrefixed(rest), true, nil
	default:
		return nil, true, ErrNotFound
	}
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// memIterator adapts a skiplist iterator to the engine iterator contract,
// exposing internal keys and their values.
type memIterator struct {
	iterator.CleanupList
	it  *ListIterator
	tmp []byte // scratch for Seek's length-prefixed target
}

// NewIterator returns an iterator over the table's internal keys.
func (m *MemTable) NewIterator() iterator.Iterator {
	return &memIterator{it: m.list.NewListIterator()}
}

func (i *memIterator) Valid() bool  { return i.it.Valid() }
func (i *memIterator) SeekToFirst() { i.it.SeekToFirst() }
func (i *memIterator) SeekToLast()  { i.it.SeekToLast() }
func (i *memIterator) Next()        { i.it.Next() }
func (i *memIterator) Prev()        { i.it.Prev() }

func (i *memIterator) Seek(target []byte) {
	// The skiplist stores length-prefixed keys; wrap the internal key.
	i.tmp = binary.AppendUvarint(i.tmp[:0], uint64(len(target)))
	i.tmp = append(i.tmp, target...)
	i.it.Seek(i.tmp)
}

func (i *memIterator) Key() []byte {
	return decodeLengthPrefixed(i.it.Key())
}

func (i *memIterator) Value() []byte {
	entry := i.it.Key()
	n, w := binary.Uvarint(entry)
	return decodeLengthPrefixed(entry[w+int(n):])
}

func (i *memIterator) Status() error { return nil }

func (i *memIterator) Close() error {
	i.RunCleanups()
	return nil
}
