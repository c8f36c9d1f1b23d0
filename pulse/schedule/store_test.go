package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
	lptest "github.com/teranos/linkpulse/internal/testing"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

var searchOpts = json.RawMessage(`{"keyword":"platform engineer"}`)

func newTestStore(t *testing.T, now time.Time) (*Store, *kv.Store) {
	t.Helper()
	kvs := kv.NewStore(lptest.CreateTestDB(t))
	s := NewStore(kvs)
	s.now = func() time.Time { return now }
	return s, kvs
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 5, 4, hh, mm, 0, 0, time.Local)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{" 07:05 ", 425, false},
		{"", 0, true},
		{"9:00", 0, true},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"ab:cd", 0, true},
		{"0900", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_AddListRemove(t *testing.T) {
	s, _ := newTestStore(t, at(6, 0))

	first, err := s.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	second, err := s.Add(pulse.KindPeopleSearch, "18:30", searchOpts)
	require.NoError(t, err)

	entries, err := s.List(pulse.KindPeopleSearch)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID, "insertion order")
	assert.Equal(t, second.ID, entries[1].ID)

	removed, err := s.Remove(pulse.KindPeopleSearch, "18:30")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(pulse.KindPeopleSearch, first.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(pulse.KindPeopleSearch, first.ID)
	require.NoError(t, err, "remove is idempotent")
	assert.False(t, removed)

	entries, err = s.List(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_AddRejectsMalformed(t *testing.T) {
	s, kvs := newTestStore(t, at(6, 0))

	_, err := s.Add(pulse.KindPeopleSearch, "9am", searchOpts)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = s.Add(pulse.KindPeopleSearch, "09:00", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, errors.ErrValidation), "missing keyword")

	_, err = s.Add("inbox", "09:00", nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	keys, err := kvs.Keys(kv.PrefixSchedules)
	require.NoError(t, err)
	assert.Empty(t, keys, "rejected entries are never persisted")
}

func TestStore_DuplicateTimeLastWriteWins(t *testing.T) {
	s, _ := newTestStore(t, at(6, 0))

	_, err := s.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	newer, err := s.Add(pulse.KindPeopleSearch, "09:00", json.RawMessage(`{"keyword":"sre"}`))
	require.NoError(t, err)

	entries, err := s.List(pulse.KindPeopleSearch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, newer.ID, entries[0].ID)
	assert.JSONEq(t, `{"keyword":"sre"}`, string(entries[0].Options))
}

func TestStore_KindsAreIndependent(t *testing.T) {
	s, _ := newTestStore(t, at(6, 0))

	_, err := s.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	_, err = s.Add(pulse.KindBulkEngagement, "09:00", json.RawMessage(`{"like":true}`))
	require.NoError(t, err)

	for _, k := range []pulse.Kind{pulse.KindPeopleSearch, pulse.KindBulkEngagement} {
		entries, err := s.List(k)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}

func TestStore_AddAfterTimePassedWaitsForTomorrow(t *testing.T) {
	s, _ := newTestStore(t, at(10, 15))

	e, err := s.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)

	fired, err := s.FiredDates(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Equal(t, pulse.DateKey(at(10, 15)), fired[e.ID])
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	s, kvs := newTestStore(t, at(6, 0))
	_, err := s.Add(pulse.KindProfileImport, "07:45", json.RawMessage(`{"mode":"connectionsOnly"}`))
	require.NoError(t, err)
	require.NoError(t, s.SetEnabled(pulse.KindProfileImport, true))

	reopened := NewStore(kvs)
	entries, err := reopened.List(pulse.KindProfileImport)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	enabled, err := reopened.Enabled(pulse.KindProfileImport)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStore_Status(t *testing.T) {
	now := at(8, 59).Add(30 * time.Second)
	s, _ := newTestStore(t, now)

	_, err := s.Add(pulse.KindPeopleSearch, "09:00", searchOpts)
	require.NoError(t, err)
	_, err = s.Add(pulse.KindPeopleSearch, "21:00", searchOpts)
	require.NoError(t, err)

	st, err := s.Status(pulse.KindPeopleSearch, now)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Nil(t, st.NextExecution, "disabled scheduler has no next execution")
	assert.Len(t, st.Schedules, 2)

	require.NoError(t, s.SetEnabled(pulse.KindPeopleSearch, true))
	st, err = s.Status(pulse.KindPeopleSearch, now)
	require.NoError(t, err)
	require.NotNil(t, st.NextExecution)
	assert.Equal(t, at(9, 0), *st.NextExecution)
	assert.Equal(t, "00:00:30", st.Countdown)
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatCountdown(-time.Second))
	assert.Equal(t, "01:02:03", FormatCountdown(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "23:59:59", FormatCountdown(24*time.Hour-time.Second))
}

func TestNext_WrapsPastMidnight(t *testing.T) {
	entries := []Entry{{ID: "a", Time: "07:00"}, {ID: "b", Time: "22:00"}}

	e, until, ok := Next(entries, at(23, 0))
	require.True(t, ok)
	assert.Equal(t, "a", e.ID)
	assert.Equal(t, 8*time.Hour, until)

	_, _, ok = Next(nil, at(23, 0))
	assert.False(t, ok)
}
