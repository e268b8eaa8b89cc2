// Package iterator defines the iteration contract shared by the memtable,
// block, table, and merged views, plus the cleanup-hook machinery that lets
// a view pin resources (cache handles, open files) for exactly its own
// lifetime.
package iterator

// Iterator walks an ordered sequence of key-value entries. Key and Value
// return views that are only valid until the next positioning call. An
// iterator is single-goroutine; distinct iterators over the same source may
// run concurrently.
type Iterator interface {
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool

	// SeekToFirst positions at the first entry, if any.
	SeekToFirst()

	// SeekToLast positions at the last entry, if any.
	SeekToLast()

	// Seek positions at the first entry with key >= target.
	Seek(target []byte)

	// Next advances to the following entry. Requires Valid.
	Next()

	// Prev moves to the preceding entry. Requires Valid.
	Prev()

	// Key returns the current entry's key. Requires Valid.
	Key() []byte

	// Value returns the current entry's value. Requires Valid.
	Value() []byte

	// Status returns the first error the iterator encountered, if any.
	Status() error

	// RegisterCleanup schedules fn to run when the iterator is closed.
	// Hooks run in registration order.
	RegisterCleanup(fn func())

	// Close releases the iterator's resources, running every registered
	// cleanup exactly once. The iterator is unusable afterwards.
	Close() error
}

// CleanupList collects cleanup hooks for an iterator. Concrete iterators
// embed it to satisfy RegisterCleanup and run the hooks from Close.
type CleanupList struct {
	fns []func()
}

// RegisterCleanup appends a hook.
func (c *CleanupList) RegisterCleanup(fn func()) {
	c.fns = append(c.fns, fn)
}

// RunCleanups runs and discards every registered hook.
func (c *CleanupList) RunCleanups() {
	for _, fn := range c.fns {
		fn()
	}
	c.fns = nil
}

// emptyIterator is permanently invalid and reports a fixed status.
type emptyIterator struct {
	CleanupList
	err error
}

// NewEmptyIterator returns an iterator over nothing. err may be nil for an
// empty-but-healthy source, or carry the error that prevented iteration.
func NewEmptyIterator(err error) Iterator {
	return &emptyIterator{err: err}
}

func (it *emptyIterator) Valid() bool        { return false }
func (it *emptyIterator) SeekToFirst()       {}
func (it *emptyIterator) SeekToLast()        {}
func (it *emptyIterator) Seek(target []byte) {}
func (it *emptyIterator) Next()              {}
func (it *emptyIterator) Prev()              {}
func (it *emptyIterator) Key() []byte        { return nil }
func (it *emptyIterator) Value() []byte      { return nil }
func (it *emptyIterator) Status() error      { return it.err }

func (it *emptyIterator) Close() error {
	it.RunCleanups()
	return it.err
}
