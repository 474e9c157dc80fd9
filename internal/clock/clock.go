package clock

import (
	"sync"
	"time"
)

// Clock provides current time abstraction for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for tests.
// Params: current instant guarded by mutex.
// Returns: clock advancing only on Advance.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates manual clock at given instant.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now.UTC()}
}

// Now returns current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves clock forward.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
