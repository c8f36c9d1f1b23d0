package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	lptest "github.com/teranos/linkpulse/internal/testing"
)

func TestDispatcher_OneHandlerPerKey(t *testing.T) {
	d := NewDispatcher(zap.NewNop().Sugar())

	require.NoError(t, d.Handle("progress:peopleSearch", func(Change) {}))
	err := d.Handle("progress:peopleSearch", func(Change) {})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	require.NoError(t, d.Handle("progress:*", func(Change) {}))
	err = d.Handle("progress:*", func(Change) {})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestDispatcher_Precedence(t *testing.T) {
	d := NewDispatcher(nil)
	var hit []string

	require.NoError(t, d.Handle("history:*", func(Change) { hit = append(hit, "history") }))
	require.NoError(t, d.Handle("history:peopleSearch:*", func(Change) { hit = append(hit, "sessions") }))
	require.NoError(t, d.Handle("history:bulkEngagement", func(Change) { hit = append(hit, "exact") }))

	assert.True(t, d.Dispatch(Change{Key: "history:bulkEngagement"}))
	assert.True(t, d.Dispatch(Change{Key: "history:peopleSearch:sessions"}))
	assert.True(t, d.Dispatch(Change{Key: "history:profileImport"}))
	assert.False(t, d.Dispatch(Change{Key: "quota:daily:2026-01-01"}))

	assert.Equal(t, []string{"exact", "sessions", "history"}, hit)

	d.HandleUnmatched(func(Change) { hit = append(hit, "fallback") })
	assert.True(t, d.Dispatch(Change{Key: "quota:daily:2026-01-01"}))
}

func TestDispatcher_RunFromStore(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	d := NewDispatcher(zap.NewNop().Sugar())

	got := make(chan Change, 1)
	require.NoError(t, d.Handle("jobState:*", func(c Change) { got <- c }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)
	go d.Run(ctx, ch)

	require.NoError(t, store.Put("jobState:peopleSearch", map[string]string{"status": "running"}))

	select {
	case c := <-got:
		assert.Equal(t, "jobState:peopleSearch", c.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}
