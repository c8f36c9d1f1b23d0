package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	lptest "github.com/teranos/linkpulse/internal/testing"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/progress"
	"github.com/teranos/linkpulse/pulse/quota"
)

// fakeExecutor performs every allowed action once per item.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []pulse.Item
	fail    map[int]error // by item index
	gate    chan struct{} // when set, each item waits for a value
	started chan int      // receives the index of each item as it begins
	details map[int][]pulse.Detail
}

func (f *fakeExecutor) Execute(ctx context.Context, item pulse.Item) (pulse.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item)
	err := f.fail[item.Index]
	gate, started := f.gate, f.started
	details := f.details[item.Index]
	f.mu.Unlock()

	if started != nil {
		started <- item.Index
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return pulse.Outcome{}, ctx.Err()
		}
	}
	if err != nil {
		return pulse.Outcome{}, err
	}

	var out pulse.Outcome
	for _, a := range item.Allowed {
		out.Metrics.Inc(a, 1)
	}
	out.Credits = item.Options.CreditCost()
	out.Details = details
	return out, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	store    *kv.Store
	guard    *quota.Guard
	ledger   *history.Ledger
	reporter *progress.Reporter
	exec     *fakeExecutor
	coord    *Coordinator
}

func newHarness(t *testing.T, plan quota.Plan, cfg Config) *harness {
	t.Helper()
	store := kv.NewStore(lptest.CreateTestDB(t))
	h := &harness{
		store:    store,
		guard:    quota.NewGuard(store, plan),
		ledger:   history.NewLedger(store, 0, 0),
		reporter: progress.NewReporter(store),
		exec:     &fakeExecutor{fail: map[int]error{}},
	}
	h.coord = NewCoordinator(Deps{
		Store:    store,
		Guard:    h.guard,
		Ledger:   h.ledger,
		Reporter: h.reporter,
		Executor: h.exec,
	}, cfg, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.coord.Shutdown(ctx)
	})
	return h
}

func (h *harness) wait(t *testing.T, kind pulse.Kind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.coord.Wait(ctx, kind))
}

func (h *harness) history(t *testing.T, kind pulse.Kind) []history.Record {
	t.Helper()
	records, err := h.ledger.List(kind, history.Filter{IncludeDetail: true})
	require.NoError(t, err)
	return records
}

func generousPlan() quota.Plan {
	return quota.Plan{
		Automations: pulse.Kinds,
		Daily:       pulse.Metrics{Likes: 100, Comments: 100, Shares: 100, Follows: 100, Connections: 100},
		Monthly:     pulse.Credits{Import: 100, AI: 100},
	}
}

func profiles(n int) []pulse.Target {
	targets := make([]pulse.Target, n)
	for i := range targets {
		targets[i] = pulse.Target{
			URL:  fmt.Sprintf("https://www.linkedin.com/in/profile-%02d", i),
			Name: fmt.Sprintf("Profile %02d", i),
		}
	}
	return targets
}

var (
	searchOptions = json.RawMessage(`{"keyword":"site reliability"}`)
	importOptions = json.RawMessage(`{"mode":"combined","like":true}`)
)

func searchRequest(n int) StartRequest {
	return StartRequest{Kind: pulse.KindPeopleSearch, Targets: profiles(n), Options: searchOptions}
}
