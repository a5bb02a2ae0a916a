package clock

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDSource 產生單調遞增的 ULID
// ulid.Monotonic 本身不是 thread-safe，需要自己加鎖
type ULIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDSource() *ULIDSource {
	return &ULIDSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New 以指定時間產生 ULID
func (s *ULIDSource) New(t time.Time) ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy)
}
