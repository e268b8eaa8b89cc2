package iterator

import (
	"errors"
	"sort"
	"testing"

	"github.com/dd0wney/cluso-kv/pkg/keys"
)

// sliceIterator is a test double over an in-memory sorted key set.
type sliceIterator struct {
	CleanupList
	entries [][2]string
	pos     int
}

func newSliceIterator(pairs ...[2]string) *sliceIterator {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return &sliceIterator{entries: pairs, pos: -1}
}

func (s *sliceIterator) Valid() bool  { return s.pos >= 0 && s.pos < len(s.entries) }
func (s *sliceIterator) SeekToFirst() { s.pos = 0 }
func (s *sliceIterator) SeekToLast()  { s.pos = len(s.entries) - 1 }
func (s *sliceIterator) Seek(target []byte) {
	s.pos = sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i][0] >= string(target)
	})
}
func (s *sliceIterator) Next()         { s.pos++ }
func (s *sliceIterator) Prev()         { s.pos-- }
func (s *sliceIterator) Key() []byte   { return []byte(s.entries[s.pos][0]) }
func (s *sliceIterator) Value() []byte { return []byte(s.entries[s.pos][1]) }
func (s *sliceIterator) Status() error { return nil }
func (s *sliceIterator) Close() error  { s.RunCleanups(); return nil }

// TestEmptyIterator tests the invalid iterator and its status carrying
func TestEmptyIterator(t *testing.T) {
	it := NewEmptyIterator(nil)
	it.SeekToFirst()
	if it.Valid() {
		t.Error("Expected empty iterator to be invalid")
	}
	if it.Status() != nil {
		t.Errorf("Expected nil status, got %v", it.Status())
	}

	wantErr := errors.New("bad block")
	it = NewEmptyIterator(wantErr)
	if !errors.Is(it.Status(), wantErr) {
		t.Errorf("Expected wrapped error, got %v", it.Status())
	}
}

// TestCleanupList_Order tests that hooks run once, in registration order
func TestCleanupList_Order(t *testing.T) {
	it := newSliceIterator([2]string{"a", "1"})
	var ran []int
	it.RegisterCleanup(func() { ran = append(ran, 1) })
	it.RegisterCleanup(func() { ran = append(ran, 2) })

	if err := it.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("Expected hooks [1 2], got %v", ran)
	}

	// A second close must not rerun hooks.
	_ = it.Close()
	if len(ran) != 2 {
		t.Errorf("Expected hooks to run once, ran %d times", len(ran))
	}
}

func newTestMerge() Iterator {
	a := newSliceIterator([2]string{"a", "1"}, [2]string{"d", "4"}, [2]string{"f", "6"})
	b := newSliceIterator([2]string{"b", "2"}, [2]string{"e", "5"})
	c := newSliceIterator([2]string{"c", "3"}, [2]string{"g", "7"})
	return NewMergingIterator(keys.BytewiseComparator(), a, b, c)
}

// TestMergingIterator_Forward tests a full forward scan across children
func TestMergingIterator_Forward(t *testing.T) {
	it := newTestMerge()
	defer it.Close()

	var got string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got += string(it.Key())
	}
	if got != "abcdefg" {
		t.Errorf("Expected abcdefg, got %q", got)
	}
	if err := it.Status(); err != nil {
		t.Errorf("Unexpected status: %v", err)
	}
}

// TestMergingIterator_Backward tests a full reverse scan
func TestMergingIterator_Backward(t *testing.T) {
	it := newTestMerge()
	defer it.Close()

	var got string
	for it.SeekToLast(); it.Valid(); it.Prev() {
		got += string(it.Key())
	}
	if got != "gfedcba" {
		t.Errorf("Expected gfedcba, got %q", got)
	}
}

// TestMergingIterator_SeekAndTurn tests seeking then switching direction
func TestMergingIterator_SeekAndTurn(t *testing.T) {
	it := newTestMerge()
	defer it.Close()

	it.Seek([]byte("d"))
	if !it.Valid() || string(it.Key()) != "d" {
		t.Fatalf("Expected to land on d, got %q", it.Key())
	}

	it.Next()
	if string(it.Key()) != "e" {
		t.Errorf("Expected e, got %q", it.Key())
	}

	// Direction change: every child must re-sync behind the current key.
	it.Prev()
	if string(it.Key()) != "d" {
		t.Errorf("Expected d after turn, got %q", it.Key())
	}
	it.Prev()
	if string(it.Key()) != "c" {
		t.Errorf("Expected c, got %q", it.Key())
	}

	it.Next()
	if string(it.Key()) != "d" {
		t.Errorf("Expected d after second turn, got %q", it.Key())
	}
}

// TestMergingIterator_SeekPastEnd tests seeking beyond every child
func TestMergingIterator_SeekPastEnd(t *testing.T) {
	it := newTestMerge()
	defer it.Close()

	it.Seek([]byte("zzz"))
	if it.Valid() {
		t.Error("Expected invalid iterator past the end")
	}
}

// TestMergingIterator_SingleChild tests the passthrough shortcut
func TestMergingIterator_SingleChild(t *testing.T) {
	a := newSliceIterator([2]string{"a", "1"})
	it := NewMergingIterator(keys.BytewiseComparator(), a)
	if it != Iterator(a) {
		t.Error("Expected single child to be returned unwrapped")
	}
}
