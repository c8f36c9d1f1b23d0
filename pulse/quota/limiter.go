package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/teranos/linkpulse/errors"
)

// Limiter enforces max actions per time window using a sliding window.
// A max of zero or less disables the limit.
type Limiter struct {
	max       int
	window    time.Duration
	mu        sync.Mutex
	callTimes []time.Time
	timeNow   func() time.Time // Injectable for testing
}

// NewLimiter creates an hourly limiter with real time
func NewLimiter(maxPerHour int) *Limiter {
	return NewLimiterWithClock(maxPerHour, time.Hour, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock (for testing)
func NewLimiterWithClock(max int, window time.Duration, timeNow func() time.Time) *Limiter {
	capacity := max
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		max:       max,
		window:    window,
		callTimes: make([]time.Time, 0, capacity),
		timeNow:   timeNow,
	}
}

// Allow records one action if the window has room.
func (r *Limiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max <= 0 {
		return nil
	}
	now := r.timeNow()
	r.removeExpired(now)

	if len(r.callTimes) >= r.max {
		err := errors.NewQuotaError("action ceiling reached: %d actions per %s", r.max, r.window)
		err = errors.WithDetail(err, fmt.Sprintf("Actions in window: %d", len(r.callTimes)))
		return err
	}
	r.callTimes = append(r.callTimes, now)
	return nil
}

// Record counts n actions that already happened. Unlike Allow it never refuses.
func (r *Limiter) Record(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max <= 0 || n <= 0 {
		return
	}
	now := r.timeNow()
	r.removeExpired(now)
	for i := 0; i < n; i++ {
		r.callTimes = append(r.callTimes, now)
	}
}

// removeExpired drops timestamps outside the window. Must be called with lock held.
func (r *Limiter) removeExpired(now time.Time) {
	cutoff := now.Add(-r.window)

	// Timestamps are ordered
	expired := 0
	for _, t := range r.callTimes {
		if !t.After(cutoff) {
			expired++
		} else {
			break
		}
	}
	r.callTimes = r.callTimes[expired:]
}

// SetMax changes the ceiling, e.g. after a config reload.
func (r *Limiter) SetMax(max int) {
	r.mu.Lock()
	r.max = max
	r.mu.Unlock()
}

// Reset clears the limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns actions in the window and the remaining room.
// Remaining is -1 when the limiter is disabled.
func (r *Limiter) Stats() (inWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max <= 0 {
		return len(r.callTimes), -1
	}
	r.removeExpired(r.timeNow())

	inWindow = len(r.callTimes)
	remaining = r.max - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return inWindow, remaining
}
