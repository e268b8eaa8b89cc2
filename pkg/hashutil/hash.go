// Package hashutil provides the seeded 32-bit hash shared by the block
// cache's shard selection and the bloom filter's probe derivation. The
// function is part of the on-disk contract: filters built with it only
// match when probed with the same function.
package hashutil

import (
	"encoding/binary"
)

// Hash computes a Murmur-like 32-bit hash of data with the given seed.
func Hash(data []byte, seed uint32) uint32 {
	const (
		m = 0xc6a4a793
		r = 24
	)
	h := seed ^ uint32(len(data))*m

	// Four bytes at a time.
	for len(data) >= 4 {
		w := binary.LittleEndian.Uint32(data)
		data = data[4:]
		h += w
		h *= m
		h ^= h >> 16
	}

	// Remaining tail.
	switch len(data) {
	case 3:
		h += uint32(data[2]) << 16
		fallthrough
	case 2:
		h += uint32(data[1]) << 8
		fallthrough
	case 1:
		h += uint32(data[0])
		h *= m
		h ^= h >> r
	}
	return h
}
