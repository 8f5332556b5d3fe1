package clock

import (
	"sync"
	"time"
)

// System is the production clock backed by time.Now
type System struct{}

// NewSystem creates a new system clock
func NewSystem() *System {
	return &System{}
}

// Now returns the current wall-clock time
func (s *System) Now() time.Time {
	return time.Now()
}

// Fake is a settable clock for deterministic tests
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock frozen at the given instant
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake's current instant
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake clock to a specific instant
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Advance moves the fake clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
