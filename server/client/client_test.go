package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/server"
	"github.com/teranos/linkpulse/version"
)

// fakeExecutor answers every command with reply(cmd).
func fakeExecutor(t *testing.T, reply func(cmd server.Command) (int, interface{})) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/command", r.URL.Path)
		assert.Equal(t, version.Version, r.Header.Get(server.ClientVersionHeader))

		var cmd server.Command
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		status, body := reply(cmd)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDo_DecodesFlattenedData(t *testing.T) {
	ts := fakeExecutor(t, func(cmd server.Command) (int, interface{}) {
		assert.Equal(t, server.ActionGetJobProgress, cmd.Action)
		assert.Equal(t, pulse.KindPeopleSearch, cmd.Kind)
		return http.StatusOK, map[string]interface{}{"success": true, "running": true, "current": 3, "total": 10}
	})

	p, err := New(ts.URL, time.Second).Progress(context.Background(), pulse.KindPeopleSearch)
	require.NoError(t, err)
	assert.True(t, p.Running)
	assert.Equal(t, 3, p.Current)
	assert.Equal(t, 10, p.Total)
}

func TestDo_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		code     string
		status   int
		sentinel error
	}{
		{errors.CodeValidation, http.StatusBadRequest, errors.ErrValidation},
		{errors.CodePermission, http.StatusForbidden, errors.ErrPermissionDenied},
		{errors.CodeConflict, http.StatusConflict, errors.ErrConflict},
		{errors.CodeQuota, http.StatusTooManyRequests, errors.ErrQuotaExceeded},
		{errors.CodeNotRunning, http.StatusConflict, errors.ErrNotRunning},
		{errors.CodeCommunication, http.StatusServiceUnavailable, errors.ErrCommunication},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ts := fakeExecutor(t, func(server.Command) (int, interface{}) {
				return tt.status, map[string]interface{}{
					"success": false,
					"error":   "rejected by executor",
					"code":    tt.code,
					"hints":   []string{"try again later"},
				}
			})

			_, err := New(ts.URL, time.Second).StopJob(context.Background(), pulse.KindBulkEngagement)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.code, errors.Code(err))
			assert.Contains(t, err.Error(), "rejected by executor")
			assert.Contains(t, errors.GetAllHints(err), "try again later")
		})
	}
}

func TestDo_UnreachableIsCommunication(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := New(url, time.Second).ClearHistory(context.Background(), pulse.KindProfileImport)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestRemoveSchedule_RefKind(t *testing.T) {
	var got []server.Command
	ts := fakeExecutor(t, func(cmd server.Command) (int, interface{}) {
		got = append(got, cmd)
		return http.StatusOK, map[string]interface{}{"success": true, "removed": true}
	})
	c := New(ts.URL, time.Second)

	removed, err := c.RemoveSchedule(context.Background(), pulse.KindPeopleSearch, "07:45")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = c.RemoveSchedule(context.Background(), pulse.KindPeopleSearch, "6f1c0f7e-entry")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "07:45", got[0].Time)
	assert.Empty(t, got[0].ID)
	assert.Equal(t, "6f1c0f7e-entry", got[1].ID)
	assert.Empty(t, got[1].Time)
}

func TestHistoryAndBacklog(t *testing.T) {
	ts := fakeExecutor(t, func(cmd server.Command) (int, interface{}) {
		switch cmd.Action {
		case server.ActionGetHistory:
			require.NotNil(t, cmd.Filter)
			assert.Equal(t, "ada", cmd.Filter.Query)
			return http.StatusOK, map[string]interface{}{
				"success": true,
				"history": []history.Record{{ID: "r1", Kind: pulse.KindPeopleSearch, Outcome: history.OutcomeSuccess}},
			}
		case server.ActionQueueTargets:
			return http.StatusOK, map[string]interface{}{"success": true, "added": len(cmd.Targets)}
		}
		return http.StatusBadRequest, map[string]interface{}{"success": false, "error": "unexpected", "code": errors.CodeValidation}
	})
	c := New(ts.URL, time.Second)

	records, err := c.History(context.Background(), pulse.KindPeopleSearch, history.Filter{Query: "ada"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.OutcomeSuccess, records[0].Outcome)

	added, err := c.QueueTargets(context.Background(), pulse.KindProfileImport, []pulse.Target{{URL: "https://www.linkedin.com/in/ada"}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}
