// Package varint decodes the SQLite-style packed integer encoding used
// throughout WAL frame payloads: up to 9 bytes, the high bit of each of the
// first 8 bytes is a continuation flag, and the remaining 7 bits of each
// byte are concatenated big-endian (most significant group first). The 9th
// byte, if reached, contributes all 8 of its bits.
package varint

import "github.com/leengari/sqlive/internal/engineerr"

// MaxLen is the longest a SQLite varint can be, in bytes.
const MaxLen = 9

// Read decodes a varint starting at buf[0] and returns its value and the
// number of bytes it occupied. It fails with engineerr.CorruptFrame if buf
// runs out before a terminating byte (high bit clear) is found within
// MaxLen bytes.
func Read(buf []byte) (value int64, n int, err error) {
	var v uint64
	for i := 0; i < MaxLen-1; i++ {
		if i >= len(buf) {
			return 0, 0, engineerr.CorruptFrame
		}
		b := buf[i]
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return int64(v), i + 1, nil
		}
	}
	// Continuation bit set on all of the first 8 bytes: the 9th byte
	// contributes all 8 of its bits rather than 7.
	if MaxLen-1 >= len(buf) {
		return 0, 0, engineerr.CorruptFrame
	}
	v = v<<8 | uint64(buf[MaxLen-1])
	return int64(v), MaxLen, nil
}

// Skip returns the byte length of the varint at buf[0] without fully
// decoding its value. Still validates that the buffer is long enough.
func Skip(buf []byte) (n int, err error) {
	for i := 0; i < MaxLen-1; i++ {
		if i >= len(buf) {
			return 0, engineerr.CorruptFrame
		}
		if buf[i]&0x80 == 0 {
			return i + 1, nil
		}
	}
	if MaxLen-1 >= len(buf) {
		return 0, engineerr.CorruptFrame
	}
	return MaxLen, nil
}
