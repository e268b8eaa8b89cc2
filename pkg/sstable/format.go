package sstable

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-kv/pkg/env"
)

// Table file layout:
//
//	[data block 0]          framed
//	[data block 1]
//	...
//	[filter block]          framed, never compressed
//	[metaindex block]       framed; "filter.<policy>" -> filter handle
//	[index block]           framed; separator -> data block handle
//	[footer]                fixed 48 bytes
//
// Block framing appends a 5-byte trailer: one compression-type byte and a
// masked CRC32C (little endian) of the block bytes plus the type byte.

const (
	// tableMagic identifies a table file footer.
	tableMagic uint64 = 0xdb4775248b80fb57

	// footerLength is the fixed encoded footer size.
	footerLength = 48

	// blockTrailerLength is the compression byte plus the checksum.
	blockTrailerLength = 5

	// maxBlockHandleLength bounds a varint-encoded handle.
	maxBlockHandleLength = 10 + 10
)

// Compression type bytes in the block trailer.
const (
	noCompressionType     = 0
	snappyCompressionType = 1
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

// maskChecksum rotates and offsets a CRC so that a block whose payload is
// itself a CRC cannot accidentally validate.
func maskChecksum(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// unmaskChecksum inverts maskChecksum.
func unmaskChecksum(masked uint32) uint32 {
	rot := masked - crcMaskDelta
	return (rot >> 17) | (rot << 15)
}

// BlockHandle locates a framed block within the file: the offset of its
// first byte and its length excluding the trailer.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the handle as two varints.
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Size)
}

// DecodeBlockHandle parses a handle from the front of b, returning the
// remaining bytes.
func DecodeBlockHandle(b []byte) (BlockHandle, []byte, error) {
	offset, n := binary.Uvarint(b)
	if n <= 0 {
		return BlockHandle{}, nil, corruptionErr("DecodeBlockHandle", "bad offset varint")
	}
	b = b[n:]
	size, n := binary.Uvarint(b)
	if n <= 0 {
		return BlockHandle{}, nil, corruptionErr("DecodeBlockHandle", "bad size varint")
	}
	return BlockHandle{Offset: offset, Size: size}, b[n:], nil
}

// Footer is the fixed-size region at the end of every table file.
type Footer struct {
	MetaindexHandle BlockHandle
	IndexHandle     BlockHandle
}

// EncodeTo appends the 48-byte footer encoding.
func (f Footer) EncodeTo(dst []byte) []byte {
	start := len(dst)
	dst = f.MetaindexHandle.EncodeTo(dst)
	dst = f.IndexHandle.EncodeTo(dst)
	// Zero-pad the handle area to its maximum size.
	for len(dst)-start < 2*maxBlockHandleLength {
		dst = append(dst, 0)
	}
	return binary.LittleEndian.AppendUint64(dst, tableMagic)
}

// DecodeFooter parses the footer from the last 48 bytes of a file.
func DecodeFooter(b []byte) (Footer, error) {
	if len(b) != footerLength {
		return Footer{}, corruptionErr("DecodeFooter", "wrong footer length")
	}
	if binary.LittleEndian.Uint64(b[footerLength-8:]) != tableMagic {
		return Footer{}, corruptionErr("DecodeFooter", "not an sstable (bad magic number)")
	}

	var f Footer
	var rest []byte
	var err error
	if f.MetaindexHandle, rest, err = DecodeBlockHandle(b); err != nil {
		return Footer{}, err
	}
	if f.IndexHandle, _, err = DecodeBlockHandle(rest); err != nil {
		return Footer{}, err
	}
	return f, nil
}

// readBlock fetches, verifies, and decompresses the block at handle. The
// returned bytes are freshly allocated and owned by the caller.
func readBlock(file env.RandomAccessFile, handle BlockHandle, verifyChecksums bool) ([]byte, error) {
	n := int(handle.Size)
	buf := make([]byte, n+blockTrailerLength)
	if _, err := file.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, &TableError{Op: "ReadBlock", Cause: err}
	}

	data := buf[:n]
	trailer := buf[n:]

	if verifyChecksums {
		crc := unmaskChecksum(binary.LittleEndian.Uint32(trailer[1:]))
		actual := crc32.Update(0, castagnoli, data)
		actual = crc32.Update(actual, castagnoli, trailer[:1])
		if crc != actual {
			return nil, corruptionErr("ReadBlock", "block checksum mismatch")
		}
	}

	switch trailer[0] {
	case noCompressionType:
		return data, nil
	case snappyCompressionType:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, corruptionErr("ReadBlock", "corrupted snappy block")
		}
		return decoded, nil
	default:
		return nil, corruptionErr("ReadBlock", "unknown block compression type")
	}
}
