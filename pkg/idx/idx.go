// Package idx mints the ULIDs used for users, messages, login challenges,
// realtime connections and token ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a canonical 26 character ULID string.
type ID string

func (id ID) String() string { return string(id) }

var ErrInvalid = errors.New("idx: invalid ulid")

// Entropy is monotonic within a millisecond so that messages created back to
// back keep their order when sorted by id.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New mints an ID stamped with the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt mints an ID stamped with t.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String())
}

// Parse accepts s if it is a well-formed ULID, ignoring surrounding space.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", ErrInvalid
	}
	return ID(s), nil
}

// Valid reports whether s is a well-formed ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time is the millisecond timestamp embedded in id, or the zero time when id
// is not a ULID.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
