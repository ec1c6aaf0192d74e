// Package id provides the opaque identifiers and content fingerprints used
// throughout the control core: restream/output identity, and the stable
// 64-bit hash used to derive broker app names from input identity.
package id

import (
	"github.com/google/uuid"
)

// ID is a fresh, universally unique identifier for a Restream or an Output.
// It serializes to and from JSON as canonical 8-4-4-4-12 hex.
type ID uuid.UUID

// New generates a fresh, cryptographically random ID.
func New() ID {
	return ID(uuid.New())
}

// Nil reports whether id is the zero value (never assigned).
func (i ID) Nil() bool {
	return i == ID{}
}

func (i ID) String() string {
	return uuid.UUID(i).String()
}

// MarshalText implements encoding.TextMarshaler so ID round-trips as a bare
// JSON string rather than an object.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = ID(u)
	return nil
}
