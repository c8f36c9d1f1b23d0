package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/job"
)

var (
	_ job.Executor     = (*Simulated)(nil)
	_ job.TargetSource = (*Simulated)(nil)
)

func TestSimulated_ProfileImport(t *testing.T) {
	s := NewSimulated(SimulatedConfig{}, nil)
	item := pulse.Item{
		Kind:    pulse.KindProfileImport,
		Target:  pulse.Target{URL: "https://www.linkedin.com/in/grace"},
		Options: pulse.ProfileImportOptions{Mode: pulse.ImportCombined, Like: true, PostsPerTarget: 3},
		Allowed: []pulse.Action{pulse.ActionConnection, pulse.ActionLike},
	}

	out, err := s.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, pulse.Metrics{Connections: 1, Likes: 3}, out.Metrics)
	assert.Equal(t, pulse.Credits{Import: 1}, out.Credits)
	assert.Len(t, out.Details, 4)
	assert.Equal(t, "https://www.linkedin.com/in/grace#post-2", out.Details[2].Subject)
	assert.Equal(t, 1, s.Executed())
}

func TestSimulated_AICreditOnlyWhenCommenting(t *testing.T) {
	s := NewSimulated(SimulatedConfig{}, nil)
	opts := pulse.BulkEngagementOptions{Like: true, Comment: true, AIComment: true}

	out, err := s.Execute(context.Background(), pulse.Item{Kind: pulse.KindBulkEngagement, Target: pulse.Target{ID: "p1"}, Options: opts, Allowed: []pulse.Action{pulse.ActionLike}})
	require.NoError(t, err)
	assert.Zero(t, out.Credits.AI, "comment exhausted, no AI spent")

	out, err = s.Execute(context.Background(), pulse.Item{Kind: pulse.KindBulkEngagement, Target: pulse.Target{ID: "p2"}, Options: opts, Allowed: []pulse.Action{pulse.ActionLike, pulse.ActionComment}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Credits.AI)
}

func TestSimulated_FailEvery(t *testing.T) {
	s := NewSimulated(SimulatedConfig{FailEvery: 3}, nil)
	var failed []int
	for i := 0; i < 7; i++ {
		_, err := s.Execute(context.Background(), pulse.Item{Index: i, Target: pulse.Target{ID: "x"}, Options: pulse.PeopleSearchOptions{Keyword: "k"}, Allowed: []pulse.Action{pulse.ActionConnection}})
		if err != nil {
			assert.Equal(t, errors.CodeItemFailed, errors.Code(err))
			failed = append(failed, i)
		}
	}
	assert.Equal(t, []int{2, 5}, failed)
}

func TestSimulated_LatencyHonoursCancel(t *testing.T) {
	s := NewSimulated(SimulatedConfig{Latency: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Execute(ctx, pulse.Item{Options: pulse.PeopleSearchOptions{Keyword: "k"}})
	assert.True(t, errors.IsFatal(err))
}

func TestSimulated_Candidates(t *testing.T) {
	s := NewSimulated(SimulatedConfig{}, nil)
	opts := pulse.PeopleSearchOptions{Keyword: "Platform Engineer"}

	first, err := s.Candidates(context.Background(), pulse.KindPeopleSearch, opts, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "https://www.linkedin.com/in/platform-engineer-1", first[0].URL)

	next, err := s.Candidates(context.Background(), pulse.KindPeopleSearch, opts, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/in/platform-engineer-3", next[0].URL, "no repeats across calls")

	none, err := s.Candidates(context.Background(), pulse.KindProfileImport, pulse.ProfileImportOptions{Mode: pulse.ImportConnectionsOnly}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
