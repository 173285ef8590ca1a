// Package idx generates the ULID identifiers used for identities, auth
// methods, challenges and signing keys. IDs sort by creation time.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in its 26 character Crockford base32 form.
type ID string

// Zero is the empty ID.
const Zero ID = ""

// ULIDSizeBytes is the length of the binary form returned by Bytes.
const ULIDSizeBytes = 16

// ErrInvalid reports a malformed ULID string or user handle.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an ID stamped with the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt returns an ID stamped with t. IDs created within the same
// millisecond still increase.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String())
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// FromBytes decodes the binary form produced by Bytes. WebAuthn user
// handles carry identity ids this way.
func FromBytes(b []byte) (ID, error) {
	if len(b) != ULIDSizeBytes {
		return Zero, ErrInvalid
	}
	var u ulid.ULID
	if err := u.UnmarshalBinary(b); err != nil {
		return Zero, ErrInvalid
	}
	return ID(u.String()), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Bytes returns the 16 byte form, or nil when id is zero or malformed.
func (id ID) Bytes() []byte {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return nil
	}
	b := make([]byte, ULIDSizeBytes)
	_ = u.MarshalBinaryTo(b)
	return b
}

// Time returns the creation time embedded in id, or the zero time.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
