// Package uid implements the 16-byte opaque identifier used throughout
// Discret for nodes, rooms and authorisations.
package uid

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// Size is the fixed byte length of a Uid.
const Size = 16

// ErrBadLength is returned when decoding a value that is not exactly Size bytes.
var ErrBadLength = errors.New("uid: invalid length")

// Uid is a 16-byte opaque identifier. It is compared and hashed as raw
// bytes; String renders it base64url-unpadded for display and wire use.
type Uid [Size]byte

// Nil is the zero Uid, used to mean "no room" on system nodes.
var Nil Uid

// New generates a fresh Uid from a cryptographically secure random source.
// uuid.NewRandom reads from crypto/rand.Reader, so the result is suitable
// as an unguessable identifier.
func New() (Uid, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return Uid{}, err
	}
	var id Uid
	copy(id[:], u[:])
	return id, nil
}

// MustNew is New but panics on entropy-source failure, for call sites that
// cannot propagate an error (e.g. package-level test fixtures).
func MustNew() Uid {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the base64url-unpadded encoding of the Uid.
func (u Uid) String() string {
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// IsNil reports whether u is the zero value.
func (u Uid) IsNil() bool {
	return u == Nil
}

// Bytes returns a copy of the raw 16 bytes.
func (u Uid) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, u[:])
	return b
}

// Parse decodes a base64url-unpadded string produced by String.
func Parse(s string) (Uid, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Uid{}, err
	}
	return FromBytes(b)
}

// FromBytes builds a Uid from a raw byte slice, which must be exactly Size bytes.
func FromBytes(b []byte) (Uid, error) {
	if len(b) != Size {
		return Uid{}, ErrBadLength
	}
	var u Uid
	copy(u[:], b)
	return u, nil
}

// MarshalJSON renders the Uid as its base64url string form.
func (u Uid) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON parses the base64url string form produced by MarshalJSON.
func (u *Uid) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("uid: invalid json")
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
