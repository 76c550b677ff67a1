package util

import (
	"encoding/base32"
	"encoding/binary"

	"github.com/google/uuid"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz156789"

var customEncoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

func EncodeToBase32(data []byte) string {
	return customEncoding.EncodeToString(data)
}

func EncodeUUIDToBase32(id uuid.UUID) string {
	return EncodeToBase32(id[:])
}

func DecodeFromBase32(s string) ([]byte, error) {
	return customEncoding.DecodeString(s)
}

func DecodeBase32ToUUID(s string) (uuid.UUID, error) {
	data, err := DecodeFromBase32(s)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(data)
}

// EncodeRowHandle renders an opaque storage-assigned row handle (spec.md's
// "row handle": a 64-bit id with no meaning outside the owning transaction)
// as a short, copy-pastable token for error messages.
func EncodeRowHandle(handle uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], handle)
	return EncodeToBase32(buf[:])
}

// DecodeRowHandle parses a token produced by EncodeRowHandle.
func DecodeRowHandle(s string) (uint64, error) {
	data, err := DecodeFromBase32(s)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, base32.CorruptInputError(0)
	}
	return binary.BigEndian.Uint64(data), nil
}
