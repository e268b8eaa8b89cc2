package iterator

import (
	"github.com/dd0wney/cluso-kv/pkg/keys"
)

type direction int

const (
	forward direction = iota
	reverse
)

// mergingIterator yields the union of its children in comparator order.
// Children must individually be ordered under the same comparator.
type mergingIterator struct {
	CleanupList
	cmp      keys.Comparator
	children []Iterator
	current  Iterator
	dir      direction
}

// NewMergingIterator merges children into a single ordered view. With zero
// children the result is an empty iterator; a single child is returned
// as-is.
func NewMergingIterator(cmp keys.Comparator, children ...Iterator) Iterator {
	switch len(children) {
	case 0:
		return NewEmptyIterator(nil)
	case 1:
		return children[0]
	}
	return &mergingIterator{
		cmp:      cmp,
		children: children,
		dir:      forward,
	}
}

func (m *mergingIterator) Valid() bool { return m.current != nil }

func (m *mergingIterator) SeekToFirst() {
	for _, child := range m.children {
		child.SeekToFirst()
	}
	m.findSmallest()
	m.dir = forward
}

func (m *mergingIterator) SeekToLast() {
	for _, child := range m.children {
		child.SeekToLast()
	}
	m.findLargest()
	m.dir = reverse
}

func (m *mergingIterator) Seek(target []byte) {
	for _, child := range m.children {
		child.Seek(target)
	}
	m.findSmallest()
	m.dir = forward
}

func (m *mergingIterator) Next() {
	// After a direction change every non-current child sits at an entry
	// <= Key(); move each one to the first entry past Key().
	if m.dir != forward {
		key := append([]byte(nil), m.Key()...)
		for _, child := range m.children {
			if child == m.current {
				continue
			}
			child.Seek(key)
			if child.Valid() && m.cmp.Compare(key, child.Key()) == 0 {
				child.Next()
			}
		}
		m.dir = forward
	}
	m.current.Next()
	m.findSmallest()
}

func (m *mergingIterator) Prev() {
	if m.dir != reverse {
		key := append([]byte(nil), m.Key()...)
		for _, child := range m.children {
			if child == m.current {
				continue
			}
			child.Seek(key)
			if child.Valid() {
				// Child is at the first entry >= key; step back to the
				// entry before key.
				child.Prev()
			} else {
				// No entry >= key, so the child's largest entry, if any,
				// is < key.
				child.SeekToLast()
			}
		}
		m.dir = reverse
	}
	m.current.Prev()
	m.findLargest()
}

func (m *mergingIterator) Key() []byte {
	return m.current.Key()
}

func (m *mergingIterator) Value() []byte {
	return m.current.Value()
}

func (m *mergingIterator) Status() error {
	for _, child := range m.children {
		if err := child.Status(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergingIterator) Close() error {
	err := m.Status()
	for _, child := range m.children {
		if cerr := child.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.RunCleanups()
	return err
}

func (m *mergingIterator) findSmallest() {
	var smallest Iterator
	for _, child := range m.children {
		if !child.Valid() {
			continue
		}
		if smallest == nil || m.cmp.Compare(child.Key(), smallest.Key()) < 0 {
			smallest = child
		}
	}
	m.current = smallest
}

func (m *mergingIterator) findLargest() {
	var largest Iterator
	// Scan in reverse so ties pick the later child, mirroring findSmallest.
	for i := len(m.children) - 1; i >= 0; i-- {
		child := m.children[i]
		if !child.Valid() {
			continue
		}
		if largest == nil || m.cmp.Compare(child.Key(), largest.Key()) > 0 {
			largest = child
		}
	}
	m.current = largest
}
