package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, time.Hour, clock.Now)

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Allow(), "action %d", i+1)
		clock.Advance(time.Minute)
	}

	err := limiter.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
}

func TestLimiter_SlidingWindow(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(3, time.Hour, clock.Now)

	limiter.Record(3)
	_, remaining := limiter.Stats()
	assert.Equal(t, 0, remaining)

	clock.Advance(59 * time.Minute)
	assert.Error(t, limiter.Allow())

	clock.Advance(2 * time.Minute)
	assert.NoError(t, limiter.Allow(), "first actions expired from the window")

	inWindow, remaining := limiter.Stats()
	assert.Equal(t, 1, inWindow)
	assert.Equal(t, 2, remaining)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Allow())
	}
	_, remaining := limiter.Stats()
	assert.Equal(t, -1, remaining)
}

func TestLimiter_SetMaxAndReset(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, time.Hour, clock.Now)
	limiter.Record(2)
	assert.Error(t, limiter.Allow())

	limiter.SetMax(5)
	assert.NoError(t, limiter.Allow())

	limiter.Reset()
	inWindow, _ := limiter.Stats()
	assert.Equal(t, 0, inWindow)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiterWithClock(50, time.Hour, time.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
