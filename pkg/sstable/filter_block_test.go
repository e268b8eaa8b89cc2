package sstable

import (
	"bytes"
	"testing"
)

// testHashPolicy records the keys each filter was built from, making
// filter boundaries observable without bloom probability.
type testHashPolicy struct{}

func (testHashPolicy) Name() string { return "TestHashFilter" }

func (testHashPolicy) CreateFilter(keys [][]byte, dst []byte) []byte {
	for _, k := range keys {
		dst = append(dst, byte(len(k)))
		dst = append(dst, k...)
	}
	return dst
}

func (testHashPolicy) KeyMayMatch(key, filter []byte) bool {
	for len(filter) > 0 {
		n := int(filter[0])
		if bytes.Equal(filter[1:1+n], key) {
			return true
		}
		filter = filter[1+n:]
	}
	return false
}

// TestFilterBlock_Empty tests the degenerate block: no filters, queries
// fail open
func TestFilterBlock_Empty(t *testing.T) {
	b := newFilterBlockBuilder(testHashPolicy{})
	block := b.Finish()

	// Offset array offset 0, no entries, base log byte.
	want := []byte{0, 0, 0, 0, filterBaseLog}
	if !bytes.Equal(block, want) {
		t.Fatalf("Expected %v, got %v", want, block)
	}

	r := newFilterBlockReader(testHashPolicy{}, block)
	if !r.KeyMayMatch(0, []byte("foo")) {
		t.Error("Expected fail-open match at offset 0")
	}
	if !r.KeyMayMatch(100000, []byte("foo")) {
		t.Error("Expected fail-open match at large offset")
	}
}

// TestFilterBlock_SingleChunk tests one filter covering several blocks
// inside the first 2 KiB window
func TestFilterBlock_SingleChunk(t *testing.T) {
	b := newFilterBlockBuilder(testHashPolicy{})
	b.StartBlock(100)
	b.AddKey([]byte("foo"))
	b.AddKey([]byte("bar"))
	b.AddKey([]byte("box"))
	b.StartBlock(200)
	b.AddKey([]byte("box"))
	b.StartBlock(300)
	b.AddKey([]byte("hello"))

	r := newFilterBlockReader(testHashPolicy{}, b.Finish())
	for _, k := range []string{"foo", "bar", "box", "hello"} {
		if !r.KeyMayMatch(100, []byte(k)) {
			t.Errorf("Expected %q to match", k)
		}
	}
	if r.KeyMayMatch(100, []byte("missing")) {
		t.Error("Expected missing to be rejected")
	}
	if r.KeyMayMatch(100, []byte("other")) {
		t.Error("Expected other to be rejected")
	}
}

// TestFilterBlock_MultiChunk tests filter spacing across 2 KiB windows,
// including an empty window that must reject everything
func TestFilterBlock_MultiChunk(t *testing.T) {
	b := newFilterBlockBuilder(testHashPolicy{})

	// First filter: blocks at offsets 0 and 2000.
	b.StartBlock(0)
	b.AddKey([]byte("foo"))
	b.StartBlock(2000)
	b.AddKey([]byte("bar"))

	// Second filter: block at 3100.
	b.StartBlock(3100)
	b.AddKey([]byte("box"))

	// Windows 2 [4096, 6144) and 3 [6144, 8192) are empty; window 4 holds
	// block 9000.
	b.StartBlock(9000)
	b.AddKey([]byte("hello"))

	r := newFilterBlockReader(testHashPolicy{}, b.Finish())

	// Window 0.
	if !r.KeyMayMatch(0, []byte("foo")) || !r.KeyMayMatch(2000, []byte("bar")) {
		t.Error("Expected window-0 keys to match")
	}
	if r.KeyMayMatch(0, []byte("box")) || r.KeyMayMatch(0, []byte("hello")) {
		t.Error("Expected later keys rejected in window 0")
	}

	// Window 1.
	if !r.KeyMayMatch(3100, []byte("box")) {
		t.Error("Expected box in window 1")
	}
	if r.KeyMayMatch(3100, []byte("foo")) || r.KeyMayMatch(3100, []byte("hello")) {
		t.Error("Expected other windows' keys rejected in window 1")
	}

	// Window 2 is empty: its filter matches nothing.
	if r.KeyMayMatch(4100, []byte("foo")) || r.KeyMayMatch(4100, []byte("box")) {
		t.Error("Expected empty window to reject everything")
	}

	// Window 4.
	if !r.KeyMayMatch(9000, []byte("hello")) {
		t.Error("Expected hello in window 4")
	}
	if r.KeyMayMatch(9000, []byte("foo")) {
		t.Error("Expected foo rejected in window 4")
	}
}

// TestFilterBlock_TruncatedFailsOpen tests that a malformed filter block
// never blocks reads
func TestFilterBlock_TruncatedFailsOpen(t *testing.T) {
	r := newFilterBlockReader(testHashPolicy{}, []byte{1, 2})
	if !r.KeyMayMatch(0, []byte("anything")) {
		t.Error("Expected truncated filter block to fail open")
	}

	// Offset array offset pointing past the block.
	bad := []byte{0xff, 0xff, 0xff, 0x7f, filterBaseLog}
	r = newFilterBlockReader(testHashPolicy{}, bad)
	if !r.KeyMayMatch(0, []byte("anything")) {
		t.Error("Expected inconsistent filter block to fail open")
	}
}
