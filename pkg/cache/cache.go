// Package cache implements the sharded LRU cache that bounds hot-block and
// open-table residency. Entries are reference counted: the cache holds one
// reference while an entry is resident, and every Lookup/Insert hands the
// caller another that must be returned with Release. An entry's deleter
// runs exactly once, when the last reference drops.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-kv/pkg/hashutil"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// Deleter releases the resources owned by a cached value. It is called
// outside any cache lock.
type Deleter func(key []byte, value any)

// Handle is a reference to a cache entry. It doubles as the entry itself:
// the hash-chain link and the intrusive list links live inline so that
// moving an entry between lists never allocates.
type Handle struct {
	value   any
	deleter Deleter

	nextHash *Handle // hash bucket chain

	// Intrusive doubly-linked list links. An entry is on the LRU list
	// while only the cache references it, on the in-use list while a
	// client also does, and on neither once it leaves the cache.
	next *Handle
	prev *Handle

	charge  int64
	key     []byte
	hash    uint32
	inCache bool
	refs    uint32
}

// Key returns the entry's key.
func (h *Handle) Key() []byte { return h.key }

// Value returns the cached value.
func (h *Handle) Value() any { return h.value }

// handleTable is a chained hash table sized to keep average chain length
// at or below one. FindPointer returns the slot holding the entry so that
// unlink and replace are single pointer writes.
type handleTable struct {
	length uint32
	elems  uint32
	list   []*Handle
}

func newHandleTable() handleTable {
	t := handleTable{}
	t.resize()
	return t
}

func (t *handleTable) findPointer(key []byte, hash uint32) **Handle {
	ptr := &t.list[hash&(t.length-1)]
	for *ptr != nil && ((*ptr).hash != hash || string(key) != string((*ptr).key)) {
		ptr = &(*ptr).nextHash
	}
	return ptr
}

func (t *handleTable) lookup(key []byte, hash uint32) *Handle {
	return *t.findPointer(key, hash)
}

// insert adds h and returns the entry it displaced, if any.
func (t *handleTable) insert(h *Handle) *Handle {
	ptr := t.findPointer(h.key, h.hash)
	old := *ptr
	if old != nil {
		h.nextHash = old.nextHash
	} else {
		h.nextHash = nil
	}
	*ptr = h
	if old == nil {
		t.elems++
		if t.elems > t.length {
			t.resize()
		}
	}
	return old
}

func (t *handleTable) remove(key []byte, hash uint32) *Handle {
	ptr := t.findPointer(key, hash)
	h := *ptr
	if h != nil {
		*ptr = h.nextHash
		t.elems--
	}
	return h
}

func (t *handleTable) resize() {
	newLength := uint32(4)
	for newLength < t.elems {
		newLength *= 2
	}
	newList := make([]*Handle, newLength)
	for _, h := range t.list {
		for h != nil {
			next := h.nextHash
			slot := &newList[h.hash&(newLength-1)]
			h.nextHash = *slot
			*slot = h
			h = next
		}
	}
	t.list = newList
	t.length = newLength
}

// shard is a single-mutex LRU cache. Entries partition into the lru list
// (refs == 1, eligible for eviction, lru.prev is newest) and the inUse
// list (refs >= 2, pinned by clients).
type shard struct {
	capacity int64
	metrics  *metrics.Registry // nil when unobserved

	mu    sync.Mutex
	usage int64
	lru   Handle
	inUse Handle
	table handleTable
}

func (s *shard) init(capacity int64, reg *metrics.Registry) {
	s.capacity = capacity
	s.metrics = reg
	s.lru.next = &s.lru
	s.lru.prev = &s.lru
	s.inUse.next = &s.inUse
	s.inUse.prev = &s.inUse
	s.table = newHandleTable()
}

func (s *shard) ref(h *Handle) {
	if h.refs == 1 && h.inCache {
		// Gaining its first external holder: lru -> inUse.
		listRemove(h)
		listAppend(&s.inUse, h)
	}
	h.refs++
}

// unref drops one reference, returning the entry's deleter invocation to
// run after the lock is released, or nil.
func (s *shard) unref(h *Handle) func() {
	h.refs--
	if h.refs == 0 {
		return func() { h.deleter(h.key, h.value) }
	}
	if h.inCache && h.refs == 1 {
		// Lost its last external holder: inUse -> lru.
		listRemove(h)
		listAppend(&s.lru, h)
	}
	return nil
}

// finishErase detaches h from the table-visible state. The caller has
// already removed it from the hash table.
func (s *shard) finishErase(h *Handle) func() {
	if h == nil {
		return nil
	}
	listRemove(h)
	h.inCache = false
	s.usage -= h.charge
	if s.metrics != nil {
		s.metrics.BlockCacheEvictions.Inc()
		s.metrics.BlockCacheUsage.Sub(float64(h.charge))
	}
	return s.unref(h)
}

func (s *shard) Insert(key []byte, hash uint32, value any, charge int64, deleter Deleter) *Handle {
	h := &Handle{
		value:   value,
		deleter: deleter,
		charge:  charge,
		key:     append([]byte(nil), key...),
		hash:    hash,
		refs:    1, // the returned handle
	}

	var deferred []func()
	s.mu.Lock()
	if s.capacity > 0 {
		h.refs++ // the cache's own reference
		h.inCache = true
		listAppend(&s.inUse, h)
		s.usage += charge
		if s.metrics != nil {
			s.metrics.BlockCacheUsage.Add(float64(charge))
		}
		if d := s.finishErase(s.table.insert(h)); d != nil {
			deferred = append(deferred, d)
		}
	}
	// With capacity == 0 caching is off; the handle exists only for the
	// caller and is on neither list.

	for s.usage > s.capacity && s.lru.next != &s.lru {
		old := s.lru.next
		s.table.remove(old.key, old.hash)
		if d := s.finishErase(old); d != nil {
			deferred = append(deferred, d)
		}
	}
	s.mu.Unlock()

	for _, d := range deferred {
		d()
	}
	return h
}

func (s *shard) Lookup(key []byte, hash uint32) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.table.lookup(key, hash)
	if h != nil {
		s.ref(h)
	}
	return h
}

func (s *shard) Release(h *Handle) {
	s.mu.Lock()
	d := s.unref(h)
	s.mu.Unlock()
	if d != nil {
		d()
	}
}

func (s *shard) Erase(key []byte, hash uint32) {
	s.mu.Lock()
	d := s.finishErase(s.table.remove(key, hash))
	s.mu.Unlock()
	if d != nil {
		d()
	}
}

func (s *shard) Prune() {
	var deferred []func()
	s.mu.Lock()
	for s.lru.next != &s.lru {
		h := s.lru.next
		s.table.remove(h.key, h.hash)
		if d := s.finishErase(h); d != nil {
			deferred = append(deferred, d)
		}
	}
	s.mu.Unlock()
	for _, d := range deferred {
		d()
	}
}

func (s *shard) TotalCharge() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func listAppend(list, h *Handle) {
	// Insert before list so that list.prev is the newest entry.
	h.next = list
	h.prev = list.prev
	h.prev.next = h
	h.next.prev = h
}

func listRemove(h *Handle) {
	h.next.prev = h.prev
	h.prev.next = h.next
}

const (
	shardBits = 4
	numShards = 1 << shardBits
)

// Cache is the sharded front. Keys hash once; the top bits pick the shard
// so concurrent operations on different shards never contend.
type Cache struct {
	shards  [numShards]shard
	lastID  atomic.Uint64
	metrics *metrics.Registry // nil when unobserved

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache with the given total capacity, split evenly across
// the shards (rounding up, as eviction is per shard).
func New(capacity int64) *Cache {
	return NewWithMetrics(capacity, nil)
}

// NewWithMetrics creates a cache that reports hits, misses, evictions,
// and resident bytes to reg's block-cache collectors. The engine's block
// cache uses this; the table cache observes itself at its own layer and
// passes nil.
func NewWithMetrics(capacity int64, reg *metrics.Registry) *Cache {
	c := &Cache{metrics: reg}
	perShard := (capacity + numShards - 1) / numShards
	for i := range c.shards {
		c.shards[i].init(perShard, reg)
	}
	return c
}

func hashKey(key []byte) uint32 { return hashutil.Hash(key, 0) }

func shardOf(hash uint32) uint32 { return hash >> (32 - shardBits) }

// Insert adds a value under key with the given charge and returns a handle
// the caller must Release. Inserting over an existing key evicts it.
func (c *Cache) Insert(key []byte, value any, charge int64, deleter Deleter) *Handle {
	hash := hashKey(key)
	return c.shards[shardOf(hash)].Insert(key, hash, value, charge, deleter)
}

// Lookup returns a handle to key's entry, or nil. A non-nil handle must be
// Released.
func (c *Cache) Lookup(key []byte) *Handle {
	hash := hashKey(key)
	h := c.shards[shardOf(hash)].Lookup(key, hash)
	if h != nil {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.BlockCacheHits.Inc()
		}
	} else {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.BlockCacheMisses.Inc()
		}
	}
	return h
}

// Release returns a handle obtained from Insert or Lookup.
func (c *Cache) Release(h *Handle) {
	c.shards[shardOf(h.hash)].Release(h)
}

// Erase removes key's entry if present. The value stays alive until every
// outstanding handle is released.
func (c *Cache) Erase(key []byte) {
	hash := hashKey(key)
	c.shards[shardOf(hash)].Erase(key, hash)
}

// NewID returns a process-unique prefix id, letting multiple clients share
// the cache without key collisions.
func (c *Cache) NewID() uint64 {
	return c.lastID.Add(1)
}

// Prune drops every entry that no client currently holds.
func (c *Cache) Prune() {
	for i := range c.shards {
		c.shards[i].Prune()
	}
}

// TotalCharge sums the charges of all resident entries.
func (c *Cache) TotalCharge() int64 {
	var total int64
	for i := range c.shards {
		total += c.shards[i].TotalCharge()
	}
	return total
}

// Stats reports cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
