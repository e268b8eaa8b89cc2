package keys

import (
	"bytes"
	"testing"
)

func ikey(userKey string, seq uint64, t ValueType) []byte {
	return AppendInternalKey(nil, []byte(userKey), seq, t)
}

// TestInternalKey_EncodeDecode tests the round trip through the encoding
func TestInternalKey_EncodeDecode(t *testing.T) {
	keyList := []string{"", "k", "hello", "longggggggggggggggggggggg"}
	seqList := []uint64{1, 2, 3, (1 << 8) - 1, 1 << 8, (1 << 16) - 1, 1 << 16, (1 << 32) - 1, 1 << 32, MaxSequence}

	for _, key := range keyList {
		for _, seq := range seqList {
			for _, vt := range []ValueType{TypeValue, TypeDeletion} {
				enc := ikey(key, seq, vt)
				parsed, ok := ParseInternalKey(enc)
				if !ok {
					t.Fatalf("ParseInternalKey(%q@%d) failed", key, seq)
				}
				if string(parsed.UserKey) != key {
					t.Errorf("Expected user key %q, got %q", key, parsed.UserKey)
				}
				if parsed.Sequence != seq {
					t.Errorf("Expected sequence %d, got %d", seq, parsed.Sequence)
				}
				if parsed.Type != vt {
					t.Errorf("Expected type %d, got %d", vt, parsed.Type)
				}
			}
		}
	}
}

// TestInternalKey_ParseErrors tests rejection of short and mistyped keys
func TestInternalKey_ParseErrors(t *testing.T) {
	if _, ok := ParseInternalKey([]byte("short")); ok {
		t.Error("Expected parse failure for 5-byte key")
	}
	bad := ikey("k", 7, TypeValue)
	bad[len(bad)-8] = 0x7f // unknown value type
	if _, ok := ParseInternalKey(bad); ok {
		t.Error("Expected parse failure for unknown value type")
	}
}

// TestInternalKeyComparator_Order tests user-key ascending, sequence
// descending ordering
func TestInternalKeyComparator_Order(t *testing.T) {
	cmp := NewInternalKeyComparator(BytewiseComparator())

	ordered := [][]byte{
		ikey("a", 100, TypeValue),
		ikey("a", 99, TypeValue),
		ikey("a", 99, TypeDeletion),
		ikey("a", 1, TypeValue),
		ikey("b", 3, TypeDeletion),
		ikey("b", 2, TypeValue),
		ikey("c", 1, TypeValue),
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if cmp.Compare(ordered[i], ordered[j]) >= 0 {
				t.Errorf("Expected key %d to sort before key %d", i, j)
			}
		}
	}
}

// TestBytewise_ShortestSeparator tests the index-key shortening rules
func TestBytewise_ShortestSeparator(t *testing.T) {
	cmp := BytewiseComparator()

	cases := []struct {
		start, limit, want string
	}{
		{"foo", "hello", "g"},
		{"abc1xyz", "abc3", "abc2"},
		{"foo", "foo2", "foo"},      // prefix, unchanged
		{"foobar", "foo", "foobar"}, // degenerate input, unchanged
		{"\xff\xff", "\xff\xff\xff", "\xff\xff"},
	}
	for _, c := range cases {
		got := cmp.FindShortestSeparator([]byte(c.start), []byte(c.limit))
		if string(got) != c.want {
			t.Errorf("Separator(%q, %q): expected %q, got %q", c.start, c.limit, c.want, got)
		}
	}
}

// TestBytewise_ShortSuccessor tests successor shortening
func TestBytewise_ShortSuccessor(t *testing.T) {
	cmp := BytewiseComparator()

	if got := cmp.FindShortSuccessor([]byte("helloworld")); string(got) != "i" {
		t.Errorf("Expected \"i\", got %q", got)
	}
	if got := cmp.FindShortSuccessor([]byte("\xff\xff")); string(got) != "\xff\xff" {
		t.Errorf("Expected all-0xff key unchanged, got %q", got)
	}
}

// TestInternalComparator_Separator tests that shortened separators keep the
// maximal trailer and still sort correctly
func TestInternalComparator_Separator(t *testing.T) {
	cmp := NewInternalKeyComparator(BytewiseComparator())

	start := ikey("foo", 100, TypeValue)
	limit := ikey("hello", 200, TypeValue)
	sep := cmp.FindShortestSeparator(start, limit)

	if cmp.Compare(start, sep) > 0 {
		t.Error("Expected start <= separator")
	}
	if cmp.Compare(sep, limit) >= 0 {
		t.Error("Expected separator < limit")
	}
	parsed, ok := ParseInternalKey(sep)
	if !ok {
		t.Fatal("Separator is not a valid internal key")
	}
	if string(parsed.UserKey) != "g" {
		t.Errorf("Expected shortened user key \"g\", got %q", parsed.UserKey)
	}
	if parsed.Sequence != MaxSequence {
		t.Errorf("Expected maximal sequence, got %d", parsed.Sequence)
	}
}

// TestLookupKey_Views tests the three views over one allocation
func TestLookupKey_Views(t *testing.T) {
	lk := NewLookupKey([]byte("user-key"), 42)

	if !bytes.Equal(lk.UserKey(), []byte("user-key")) {
		t.Errorf("Expected user key view, got %q", lk.UserKey())
	}
	parsed, ok := ParseInternalKey(lk.InternalKey())
	if !ok {
		t.Fatal("Lookup key holds an invalid internal key")
	}
	if parsed.Sequence != 42 || parsed.Type != TypeForSeek {
		t.Errorf("Expected seq 42 seek type, got %d/%d", parsed.Sequence, parsed.Type)
	}

	// Memtable key = varint length prefix + internal key.
	mk := lk.MemtableKey()
	if !bytes.HasSuffix(mk, lk.InternalKey()) {
		t.Error("Expected memtable key to end with the internal key")
	}
	if mk[0] != byte(len(lk.InternalKey())) {
		t.Errorf("Expected length prefix %d, got %d", len(lk.InternalKey()), mk[0])
	}
}
