package clock

import (
	"sync"
	"time"
)

// Clock is the single authority for server time. Client timestamps are never
// trusted; every "is the lot closed?" decision reads this interface.
type Clock interface {
	Now() time.Time
}

// System is a wall clock guarded against running backward: if the OS clock
// steps back, Now keeps returning the last observed instant until the wall
// clock catches up.
type System struct {
	mu   sync.Mutex
	last time.Time
}

// NewSystem returns a monotonic-guarded system clock.
func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// Fixed is a settable clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a test clock pinned at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}
