package rbn

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// IDSource hands out monotonically increasing ULIDs. It is safe for
// concurrent use.
type IDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDSource creates an ID source.
func NewIDSource() *IDSource {
	return &IDSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a fresh ID.
func (s *IDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}
