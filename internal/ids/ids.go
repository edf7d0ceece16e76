// Package ids generates identifiers for persisted entities.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// Sortable returns a lexicographically sortable identifier. Timeline entries and
// facet ids use it so that storage order follows creation order.
func Sortable() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// Opaque returns a 256-bit random token hex encoded. Used for session ids and
// invitation tokens, which must not be guessable.
func Opaque() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
