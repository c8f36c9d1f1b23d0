package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
)

type recordingTrigger struct {
	mu    sync.Mutex
	fired []Entry
	err   error
}

func (r *recordingTrigger) Fire(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, e)
	return r.err
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func newTestTicker(t *testing.T, store *Store, trigger Trigger, catchUp bool) *Ticker {
	cfg := DefaultTickerConfig()
	cfg.CatchUpMissed = catchUp
	return NewTicker(store, trigger, cfg, zaptest.NewLogger(t).Sugar())
}

func TestTicker_FiresAtScheduledMinute(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, true)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	require.NoError(t, ticker.Tick(at(8, 59)))
	assert.Equal(t, 0, trigger.count())

	require.NoError(t, ticker.Tick(at(9, 0)))
	require.NoError(t, ticker.Tick(at(9, 0).Add(30*time.Second)))
	assert.Equal(t, 1, trigger.count(), "same minute fires once")
}

func TestTicker_DisabledKindNeverFires(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, true)

	_, err := store.Add(pulse.KindBulkEngagement, "09:00", json.RawMessage(`{"like":true}`))
	require.NoError(t, err)

	require.NoError(t, ticker.Tick(at(9, 0)))
	require.NoError(t, ticker.Tick(at(12, 0)))
	assert.Equal(t, 0, trigger.count())
}

// A ScheduleEntry emits at most one due signal per calendar day even when
// evaluated every second across the whole day.
func TestTicker_AtMostOneFirePerDay(t *testing.T) {
	if testing.Short() {
		t.Skip("ticks through a full day")
	}
	store, _ := newTestStore(t, at(0, 0).Add(-time.Minute))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, true)

	times := []string{"00:00", "09:00", "13:37", "23:59"}
	for _, hhmm := range times {
		_, err := store.Add(pulse.KindPeopleSearch, hhmm, searchOpts)
		require.NoError(t, err)
	}
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	start := at(0, 0)
	for s := 0; s < 24*3600; s++ {
		require.NoError(t, ticker.Tick(start.Add(time.Duration(s)*time.Second)))
	}

	perEntry := map[string]int{}
	for _, e := range trigger.fired {
		perEntry[e.Time]++
	}
	for _, hhmm := range times {
		assert.Equal(t, 1, perEntry[hhmm], "entry %s", hhmm)
	}

	// The next day each entry becomes due again
	require.NoError(t, ticker.Tick(start.Add(24*time.Hour)))
	assert.Equal(t, len(times)+1, trigger.count())
}

func TestTicker_CatchUpAfterSleep(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, true)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	_, err = store.Add(pulse.KindPeopleSearch, "09:30", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	// Laptop slept from 08:55 to 10:12
	require.NoError(t, ticker.Tick(at(10, 12)))
	require.Equal(t, 1, trigger.count(), "missed entries collapse into one run")
	assert.Equal(t, "09:30", trigger.fired[0].Time)

	require.NoError(t, ticker.Tick(at(10, 13)))
	assert.Equal(t, 1, trigger.count(), "catch-up happens only once")
}

func TestTicker_NoCatchUpWhenDisabled(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, false)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	require.NoError(t, ticker.Tick(at(10, 12)))
	assert.Equal(t, 0, trigger.count())
}

// Schedule times are wall-clock times in the configured zone, whatever the host zone is.
func TestTicker_FiresInConfiguredZone(t *testing.T) {
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)
	inZone := func(hh, mm int) time.Time { return time.Date(2026, 5, 4, hh, mm, 0, 0, kathmandu) }

	store, _ := newTestStore(t, inZone(6, 0))
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, false)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	require.NoError(t, ticker.Tick(inZone(8, 59)))
	assert.Equal(t, 0, trigger.count())
	require.NoError(t, ticker.Tick(inZone(9, 0)))
	assert.Equal(t, 1, trigger.count())

	fired, err := store.FiredDates(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04", fired[trigger.fired[0].ID])
	assert.Equal(t, 9*60, minuteOfDay(inZone(9, 0)))
}

// Entries that passed while the scheduler was switched off are not caught up on enable.
func TestTicker_EnablingDoesNotCatchUpEarlierEntries(t *testing.T) {
	now := at(6, 0)
	store, _ := newTestStore(t, now)
	store.now = func() time.Time { return now }
	trigger := &recordingTrigger{}
	ticker := newTestTicker(t, store, trigger, true)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	_, err = store.Add(pulse.KindPeopleSearch, "18:00", searchOpts)
	require.NoError(t, err)

	require.NoError(t, ticker.Tick(at(9, 0)))
	require.NoError(t, ticker.Tick(at(14, 59)))

	now = at(15, 0)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))
	require.NoError(t, ticker.Tick(at(15, 0)))
	assert.Equal(t, 0, trigger.count(), "09:00 passed while disabled")

	require.NoError(t, ticker.Tick(at(18, 0)))
	require.Equal(t, 1, trigger.count())
	assert.Equal(t, "18:00", trigger.fired[0].Time)

	require.NoError(t, ticker.Tick(at(9, 0).AddDate(0, 0, 1)))
	assert.Equal(t, 2, trigger.count(), "09:00 runs again the next day")
}

// Re-enabling an already enabled kind keeps today's pending catch-up.
func TestStore_SetEnabledTwiceKeepsFiredDates(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	e, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	store.now = func() time.Time { return at(10, 0) }
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	fired, err := store.FiredDates(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Empty(t, fired[e.ID])
}

func TestTicker_RejectedStartIsConsumed(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	trigger := &recordingTrigger{err: errors.NewConflictError("peopleSearch already running")}
	ticker := newTestTicker(t, store, trigger, true)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))

	require.NoError(t, ticker.Tick(at(9, 0)))
	require.NoError(t, ticker.Tick(at(9, 1)))
	assert.Equal(t, 1, trigger.count())
}

func TestTicker_Countdown(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	ticker := newTestTicker(t, store, nil, true)

	_, err := store.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)

	c, err := ticker.Countdown(pulse.KindPeopleSearch, at(8, 0))
	require.NoError(t, err)
	assert.False(t, c.Enabled)
	assert.Empty(t, c.Remaining)

	require.NoError(t, store.SetEnabled(pulse.KindPeopleSearch, true))
	c, err = ticker.Countdown(pulse.KindPeopleSearch, at(8, 0).Add(15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "00:59:45", c.Remaining)
	assert.Equal(t, "09:00", c.Next)
}

func TestTicker_PublishesCountdowns(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	ticker := newTestTicker(t, store, nil, true)
	ch := ticker.SubscribeCountdown()
	defer ticker.UnsubscribeCountdown(ch)

	ticker.publishCountdowns(at(8, 0))

	select {
	case cs := <-ch:
		assert.Len(t, cs, len(pulse.Kinds))
	case <-time.After(time.Second):
		t.Fatal("no countdown published")
	}
}

func TestTicker_StartStop(t *testing.T) {
	store, _ := newTestStore(t, at(6, 0))
	cfg := TickerConfig{Interval: 10 * time.Millisecond}
	ticker := NewTicker(store, nil, cfg, zaptest.NewLogger(t).Sugar())

	ticker.Start()
	assert.Eventually(t, func() bool { return ticker.GetStats().TicksSinceStart > 2 }, time.Second, 10*time.Millisecond)
	ticker.Stop()

	stats := ticker.GetStats()
	assert.Equal(t, 10*time.Millisecond, stats.Interval)
}
