// Package varint implements the little-endian continuation-bit varint
// codec used for every on-disk ID and offset in the index.
package varint

import "encoding/binary"

// MaxLen64 is the longest a 64-bit varint can be.
const MaxLen64 = binary.MaxVarintLen64

// MaxLen32 is the longest a 32-bit varint can be.
const MaxLen32 = binary.MaxVarintLen32

// AppendUint64 appends the varint encoding of v to dst and returns the
// extended slice.
func AppendUint64(dst []byte, v uint64) []byte {
	var buf [MaxLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// AppendUint32 appends the varint encoding of v to dst and returns the
// extended slice.
func AppendUint32(dst []byte, v uint32) []byte {
	return AppendUint64(dst, uint64(v))
}

// Uint64 decodes a varint-encoded uint64 from the head of buf, returning
// the value and the number of bytes consumed. n is 0 on a short buffer
// and negative when the encoded value overflows 64 bits.
func Uint64(buf []byte) (v uint64, n int) {
	return binary.Uvarint(buf)
}

// Uint32 decodes a varint-encoded uint32 from the head of buf.
func Uint32(buf []byte) (v uint32, n int) {
	u, n := binary.Uvarint(buf)
	return uint32(u), n
}
