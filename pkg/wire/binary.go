package wire

import "encoding/binary"

// WordSize is the granularity of the message body. Every value starts at a
// multiple of it and strings/blobs are zero-padded up to it.
const WordSize = 8

// Flip64 converts a 64-bit word between host and wire (big-endian) byte
// order. It is its own inverse: Flip64(Flip64(x)) == x. On big-endian hosts
// it reduces to the identity.
func Flip64(v uint64) uint64 {
	var b [WordSize]byte
	binary.BigEndian.PutUint64(b[:], v)
	return binary.NativeEndian.Uint64(b[:])
}

// Align rounds n up to the next word boundary.
func Align(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}
