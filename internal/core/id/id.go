// Package id provides UUIDv7 identifiers for all stored records.
// UUIDv7 is time-ordered, so ids double as a stable creation-order key.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
// The first 48 bits carry the Unix millisecond timestamp, which keeps
// B-tree inserts local and lets ids break ties in creation order.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Compare orders two ids bytewise. For UUIDv7 this is creation order.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Ptr returns a pointer to v, or nil when v is the zero id.
func Ptr(v ID) *ID {
	if IsNil(v) {
		return nil
	}
	return &v
}
