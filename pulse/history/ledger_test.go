package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lptest "github.com/teranos/linkpulse/internal/testing"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

func newTestLedger(t *testing.T, itemCap, sessionCap int) *Ledger {
	t.Helper()
	return NewLedger(kv.NewStore(lptest.CreateTestDB(t)), itemCap, sessionCap)
}

func record(kind pulse.Kind, n int) Record {
	return Record{
		Kind:    kind,
		Target:  pulse.Target{URL: fmt.Sprintf("https://www.linkedin.com/in/person-%d", n), Name: fmt.Sprintf("Person %d", n)},
		Outcome: OutcomeSuccess,
		Metrics: pulse.Metrics{Connections: 1},
	}
}

// After N appends with N above the cap C, List returns exactly the C most recent.
func TestLedger_Bounded(t *testing.T) {
	const capacity = 20
	l := newTestLedger(t, capacity, 0)

	for n := 0; n < capacity+15; n++ {
		_, err := l.Append(record(pulse.KindPeopleSearch, n))
		require.NoError(t, err)
	}

	records, err := l.List(pulse.KindPeopleSearch, Filter{})
	require.NoError(t, err)
	require.Len(t, records, capacity)
	assert.Equal(t, "Person 34", records[0].Target.Name, "newest first")
	assert.Equal(t, "Person 15", records[capacity-1].Target.Name, "oldest evicted")
}

func TestLedger_DefaultCaps(t *testing.T) {
	l := newTestLedger(t, 0, -1)
	assert.Equal(t, DefaultItemCap, l.itemCap)
	assert.Equal(t, DefaultSessionCap, l.sessionCap)
}

func TestLedger_AppendAssignsIDAndTimestamp(t *testing.T) {
	l := newTestLedger(t, 10, 10)
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	rec, err := l.Append(record(pulse.KindBulkEngagement, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, fixed, rec.Timestamp)

	_, err = l.Append(Record{Kind: "unknown"})
	assert.Error(t, err)
}

func TestLedger_ListFilter(t *testing.T) {
	l := newTestLedger(t, 10, 10)

	withDetail := record(pulse.KindProfileImport, 1)
	withDetail.Target.Name = "Grace Hopper"
	withDetail.Details = []pulse.Detail{{Action: pulse.ActionLike, Subject: "post-1", Outcome: "done"}}
	_, err := l.Append(withDetail)
	require.NoError(t, err)

	failed := record(pulse.KindProfileImport, 2)
	failed.Outcome = OutcomeFailed
	_, err = l.Append(failed)
	require.NoError(t, err)

	got, err := l.List(pulse.KindProfileImport, Filter{Query: "hopper"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Details, "detail stripped unless requested")

	got, err = l.List(pulse.KindProfileImport, Filter{Query: "HOPPER", IncludeDetail: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Details, 1)

	got, err = l.List(pulse.KindProfileImport, Filter{Query: "person-2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = l.List(pulse.KindProfileImport, Filter{Outcome: OutcomeFailed})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = l.List(pulse.KindProfileImport, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLedger_KindsAreSeparate(t *testing.T) {
	l := newTestLedger(t, 10, 10)
	_, err := l.Append(record(pulse.KindPeopleSearch, 1))
	require.NoError(t, err)

	got, err := l.List(pulse.KindBulkEngagement, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLedger_Clear(t *testing.T) {
	l := newTestLedger(t, 10, 10)
	_, err := l.Append(record(pulse.KindPeopleSearch, 1))
	require.NoError(t, err)
	_, err = l.AppendSession(Session{Kind: pulse.KindPeopleSearch, RunID: "r1"})
	require.NoError(t, err)

	require.NoError(t, l.Clear(pulse.KindPeopleSearch))
	require.NoError(t, l.Clear(pulse.KindPeopleSearch))

	got, err := l.List(pulse.KindPeopleSearch, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	last, err := l.LastSession(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestLedger_Sessions(t *testing.T) {
	l := newTestLedger(t, 10, 3)

	for i := 0; i < 5; i++ {
		_, err := l.AppendSession(Session{Kind: pulse.KindBulkEngagement, RunID: fmt.Sprintf("run-%d", i)})
		require.NoError(t, err)
	}

	sessions, err := l.Sessions(pulse.KindBulkEngagement, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "run-4", sessions[0].RunID)

	last, err := l.LastSession(pulse.KindBulkEngagement)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-4", last.RunID)
}
