package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicNeverGoesBack(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(-time.Hour), base.Add(2 * time.Second)}
	i := 0
	c := NewMonotonicFrom(func() time.Time {
		t := ticks[i]
		i++
		return t
	})

	assert.Equal(t, base, c.Now())
	assert.Equal(t, base.Add(time.Second), c.Now())
	assert.Equal(t, base.Add(time.Second), c.Now(), "clock rollback must be absorbed")
	assert.Equal(t, base.Add(2*time.Second), c.Now())
}

func TestULIDSourceIsSortable(t *testing.T) {
	s := NewULIDSource()
	now := time.Now()
	prev := s.New(now)
	for i := 0; i < 1000; i++ {
		next := s.New(now)
		assert.Equal(t, 1, next.Compare(prev))
		prev = next
	}
}
