package clock

import (
	"sync"
	"time"
)

// Monotonic 保證同一個 process 內回傳的時間單調不減
// 系統時間回撥時沿用上一次的時間
type Monotonic struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonic 以 time.Now 為來源
func NewMonotonic() *Monotonic {
	return &Monotonic{now: time.Now}
}

// NewMonotonicFrom 指定時間來源 (測試用)
func NewMonotonicFrom(now func() time.Time) *Monotonic {
	return &Monotonic{now: now}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now().UTC()
	if t.Before(m.last) {
		return m.last
	}
	m.last = t
	return t
}
