// Package keys defines the internal key encoding that orders every entry in
// the engine, and the comparators that interpret it. An internal key is the
// user key followed by an 8-byte little-endian trailer packing a 56-bit
// sequence number with an 8-bit value type. Entries for the same user key
// sort newest-first because the trailer is compared descending.
package keys

import (
	"encoding/binary"
	"fmt"
)

// ValueType tags an internal key as a live value or a deletion tombstone.
type ValueType byte

const (
	// TypeDeletion marks a tombstone.
	TypeDeletion ValueType = 0
	// TypeValue marks a live key-value entry.
	TypeValue ValueType = 1
)

// TypeForSeek is the value type used when constructing seek keys. It is the
// highest type value, so a seek key sorts before every entry with the same
// user key and sequence.
const TypeForSeek = TypeValue

// MaxSequence is the largest representable sequence number (56 bits).
const MaxSequence = (uint64(1) << 56) - 1

// PackSequenceAndType combines a sequence number and value type into the
// 8-byte trailer value.
func PackSequenceAndType(seq uint64, t ValueType) uint64 {
	return seq<<8 | uint64(t)
}

// AppendInternalKey appends the encoded internal key for
// (userKey, seq, t) to dst and returns the extended slice.
func AppendInternalKey(dst, userKey []byte, seq uint64, t ValueType) []byte {
	dst = append(dst, userKey...)
	return binary.LittleEndian.AppendUint64(dst, PackSequenceAndType(seq, t))
}

// ParsedInternalKey is the decoded form of an internal key. UserKey aliases
// the encoded buffer.
type ParsedInternalKey struct {
	UserKey  []byte
	Sequence uint64
	Type     ValueType
}

// ParseInternalKey decodes ik. It reports false when ik is too short or
// carries an unknown value type.
func ParseInternalKey(ik []byte) (ParsedInternalKey, bool) {
	if len(ik) < 8 {
		return ParsedInternalKey{}, false
	}
	num := binary.LittleEndian.Uint64(ik[len(ik)-8:])
	t := ValueType(num & 0xff)
	if t > TypeValue {
		return ParsedInternalKey{}, false
	}
	return ParsedInternalKey{
		UserKey:  ik[:len(ik)-8],
		Sequence: num >> 8,
		Type:     t,
	}, true
}

// ExtractUserKey strips the 8-byte trailer. ik must be a valid internal key.
func ExtractUserKey(ik []byte) []byte {
	return ik[:len(ik)-8]
}

// String renders a parsed key for logs and the sst-dump tool.
func (p ParsedInternalKey) String() string {
	kind := "del"
	if p.Type == TypeValue {
		kind = "val"
	}
	return fmt.Sprintf("%q @ %d : %s", p.UserKey, p.Sequence, kind)
}

// LookupKey bundles the three encodings a point lookup needs: the
// length-prefixed form probed against the memtable, the internal key probed
// against tables, and the bare user key.
type LookupKey struct {
	buf   []byte
	start int // offset of the internal key within buf
}

// NewLookupKey builds a lookup key for userKey at the given snapshot
// sequence. Entries newer than the snapshot sort before it and are skipped
// by the seek itself.
func NewLookupKey(userKey []byte, snapshot uint64) *LookupKey {
	internalLen := len(userKey) + 8
	buf := binary.AppendUvarint(make([]byte, 0, internalLen+5), uint64(internalLen))
	start := len(buf)
	buf = AppendInternalKey(buf, userKey, snapshot, TypeForSeek)
	return &LookupKey{buf: buf, start: start}
}

// MemtableKey returns the length-prefixed internal key.
func (lk *LookupKey) MemtableKey() []byte { return lk.buf }

// InternalKey returns the internal key without the length prefix.
func (lk *LookupKey) InternalKey() []byte { return lk.buf[lk.start:] }

// UserKey returns the bare user key.
func (lk *LookupKey) UserKey() []byte { return lk.buf[lk.start : len(lk.buf)-8] }
