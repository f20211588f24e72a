// Package bytesutil defines helper methods for converting between the
// byte, hex and integer representations used across the coordinator.
package bytesutil

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// ErrBadHex32 is returned when a string is not a 64 character hex encoding
// of 32 bytes.
var ErrBadHex32 = errors.New("must be a 64 character hex string")

// ToBytes32 is a convenience method for converting a byte slice to a fix
// sized 32 byte array. This method will truncate the input if it is larger
// than 32 bytes.
func ToBytes32(x []byte) [32]byte {
	var y [32]byte
	copy(y[:], x)
	return y
}

// DecodeHex32 parses a 64 character hex string into a 32 byte array.
func DecodeHex32(s string) ([32]byte, error) {
	var b [32]byte
	if len(s) != 64 {
		return b, ErrBadHex32
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return b, ErrBadHex32
	}
	copy(b[:], raw)
	return b, nil
}

// EncodeHex returns the lowercase hex encoding of b.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Uint64ToBytesBigEndian conversion.
func Uint64ToBytesBigEndian(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

// BytesToUint64BigEndian conversion. Returns 0 if input is shorter
// than 8 bytes.
func BytesToUint64BigEndian(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// SafeCopyBytes will copy and return a non-nil byte slice, otherwise
// it returns nil.
func SafeCopyBytes(cp []byte) []byte {
	if cp != nil {
		copied := make([]byte, len(cp))
		copy(copied, cp)
		return copied
	}
	return nil
}

// IsZero32 reports whether b is all zero bytes.
func IsZero32(b [32]byte) bool {
	return b == [32]byte{}
}

// Trunc truncates a byte slice to a length of 6 characters plus an
// ellipsis, useful for logging 32 byte roots and keys.
func Trunc(x []byte) string {
	str := EncodeHex(x)
	if len(str) > 12 {
		return fmt.Sprintf("%s...", str[:12])
	}
	return str
}
