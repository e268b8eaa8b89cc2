package sstable

import (
	"github.com/dd0wney/cluso-kv/pkg/hashutil"
	"github.com/dd0wney/cluso-kv/pkg/keys"
)

// FilterPolicy builds and probes probabilistic membership filters for the
// keys in a table. False positives cost a wasted block read; false
// negatives are forbidden.
type FilterPolicy interface {
	// Name identifies the policy. It is written into the table's
	// metaindex, so changing a policy's behavior requires a new name.
	Name() string

	// CreateFilter appends a filter summarizing keys to dst.
	CreateFilter(keys [][]byte, dst []byte) []byte

	// KeyMayMatch reports whether key could be in the set the filter was
	// built from.
	KeyMayMatch(key, filter []byte) bool
}

// internalFilterPolicy adapts a user-key policy to internal keys by
// stripping the sequence/type trailer on both sides. Without it, a filter
// built from one version of a key would never match a probe carrying a
// different snapshot sequence.
type internalFilterPolicy struct {
	user FilterPolicy
}

// NewInternalFilterPolicy wraps a user-key policy for tables ordered by
// internal keys.
func NewInternalFilterPolicy(user FilterPolicy) FilterPolicy {
	return &internalFilterPolicy{user: user}
}

func (p *internalFilterPolicy) Name() string { return p.user.Name() }

func (p *internalFilterPolicy) CreateFilter(ikeys [][]byte, dst []byte) []byte {
	userKeys := make([][]byte, len(ikeys))
	for i, k := range ikeys {
		userKeys[i] = keys.ExtractUserKey(k)
	}
	return p.user.CreateFilter(userKeys, dst)
}

func (p *internalFilterPolicy) KeyMayMatch(key, filter []byte) bool {
	return p.user.KeyMayMatch(keys.ExtractUserKey(key), filter)
}

// bloomFilterPolicy is a standard bloom filter with double-hashing probe
// derivation, so one hash computation serves all k probes.
type bloomFilterPolicy struct {
	bitsPerKey int
	k          int
}

// NewBloomFilterPolicy creates a bloom policy with the given bits per key;
// 10 bits gives roughly a 1% false-positive rate.
func NewBloomFilterPolicy(bitsPerKey int) FilterPolicy {
	// k ~= bitsPerKey * ln(2) minimizes the false-positive rate.
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &bloomFilterPolicy{bitsPerKey: bitsPerKey, k: k}
}

func (p *bloomFilterPolicy) Name() string {
	return "leveldb.BuiltinBloomFilter2"
}

func bloomHash(key []byte) uint32 {
	return hashutil.Hash(key, 0xbc9f1d34)
}

func (p *bloomFilterPolicy) CreateFilter(keys [][]byte, dst []byte) []byte {
	bits := len(keys) * p.bitsPerKey
	// Tiny filters have untenable false-positive rates.
	if bits < 64 {
		bits = 64
	}
	nbytes := (bits + 7) / 8
	bits = nbytes * 8

	start := len(dst)
	dst = append(dst, make([]byte, nbytes)...)
	array := dst[start:]

	for _, key := range keys {
		h := bloomHash(key)
		delta := h>>17 | h<<15
		for j := 0; j < p.k; j++ {
			bitpos := h % uint32(bits)
			array[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}
	// Remember k so the probe side stays compatible if the constant
	// changes.
	return append(dst, byte(p.k))
}

func (p *bloomFilterPolicy) KeyMayMatch(key, filter []byte) bool {
	if len(filter) < 2 {
		return false
	}
	array := filter[:len(filter)-1]
	bits := uint32(len(array) * 8)

	k := filter[len(filter)-1]
	if k > 30 {
		// Reserved for future encodings; treat as a match.
		return true
	}

	h := bloomHash(key)
	delta := h>>17 | h<<15
	for j := byte(0); j < k; j++ {
		bitpos := h % bits
		if array[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
