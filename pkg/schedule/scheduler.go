package schedule

import (
	"sync"
	"time"
)

// ShouldRefresh reports whether at least interval has elapsed since last. A
// zero last time means nothing was computed yet.
func ShouldRefresh(now, last time.Time, interval time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= interval
}

// Scheduler throttles recomputation independently of how often the display
// polls. Force makes the next Due call return true regardless of the clock.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	forced   bool
}

// New returns a scheduler with the given minimum interval.
func New(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// Interval returns the minimum time between refreshes.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Force requests a refresh on the next Due check.
func (s *Scheduler) Force() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = true
}

// Due reports whether a refresh should run at now.
func (s *Scheduler) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced || ShouldRefresh(now, s.last, s.interval)
}

// Mark records a completed refresh and clears any forced request.
func (s *Scheduler) Mark(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = now
	s.forced = false
}

// Last returns the time of the last completed refresh.
func (s *Scheduler) Last() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
