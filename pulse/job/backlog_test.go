package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
	lptest "github.com/teranos/linkpulse/internal/testing"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

func TestBacklog_PushDedupes(t *testing.T) {
	b := NewBacklog(kv.NewStore(lptest.CreateTestDB(t)))

	added, err := b.Push(pulse.KindProfileImport, profiles(3))
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = b.Push(pulse.KindProfileImport, profiles(5))
	require.NoError(t, err)
	assert.Equal(t, 2, added, "already queued targets are ignored")

	all, err := b.List(pulse.KindProfileImport)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	other, err := b.List(pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.Empty(t, other, "backlogs are per kind")
}

func TestBacklog_RejectsInvalid(t *testing.T) {
	b := NewBacklog(kv.NewStore(lptest.CreateTestDB(t)))

	_, err := b.Push(pulse.KindProfileImport, []pulse.Target{{Name: "no identity"}})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = b.Push(pulse.Kind("inboxSweep"), profiles(1))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestBacklog_PeekAndAck(t *testing.T) {
	b := NewBacklog(kv.NewStore(lptest.CreateTestDB(t)))
	targets := profiles(4)
	_, err := b.Push(pulse.KindBulkEngagement, targets)
	require.NoError(t, err)

	head, err := b.Peek(pulse.KindBulkEngagement, 2)
	require.NoError(t, err)
	assert.Equal(t, targets[:2], head)

	require.NoError(t, b.Ack(pulse.KindBulkEngagement, targets[1].Key()))
	require.NoError(t, b.Ack(pulse.KindBulkEngagement, "https://www.linkedin.com/in/unknown"))

	head, err = b.Peek(pulse.KindBulkEngagement, 2)
	require.NoError(t, err)
	assert.Equal(t, []pulse.Target{targets[0], targets[2]}, head)

	all, err := b.List(pulse.KindBulkEngagement)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
