package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
)

// SimulatedConfig tunes dry runs.
type SimulatedConfig struct {
	// Latency is spent on every item, honouring cancellation.
	Latency time.Duration
	// FailEvery fails every Nth item of a run (by index) when positive.
	FailEvery int
}

// Simulated is a deterministic executor: every allowed action succeeds once
// per target (profile import engages PostsPerTarget posts).
type Simulated struct {
	cfg    SimulatedConfig
	logger *zap.SugaredLogger

	mu       sync.Mutex
	executed int
	served   map[pulse.Kind]int
}

// NewSimulated creates a dry-run executor.
func NewSimulated(cfg SimulatedConfig, log *zap.SugaredLogger) *Simulated {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Simulated{cfg: cfg, logger: log, served: make(map[pulse.Kind]int)}
}

// Execute pretends to perform item.
func (s *Simulated) Execute(ctx context.Context, item pulse.Item) (pulse.Outcome, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return pulse.Outcome{}, errors.WrapCommunication(ctx.Err(), "simulated item")
		}
	}

	s.mu.Lock()
	s.executed++
	s.mu.Unlock()

	if s.cfg.FailEvery > 0 && (item.Index+1)%s.cfg.FailEvery == 0 {
		return pulse.Outcome{}, errors.WrapItem(errors.Newf("simulated failure for %s", item.Target.Key()), "execute")
	}

	posts := 1
	if o, ok := item.Options.(pulse.ProfileImportOptions); ok && o.PostsPerTarget > 0 {
		posts = o.PostsPerTarget
	}

	var out pulse.Outcome
	for _, a := range item.Allowed {
		n := 1
		if item.Kind == pulse.KindProfileImport && (a == pulse.ActionLike || a == pulse.ActionComment) {
			n = posts
		}
		out.Metrics.Inc(a, n)
		for i := 0; i < n; i++ {
			out.Details = append(out.Details, pulse.Detail{
				Action:  a,
				Subject: subject(item.Target, a, i),
				Outcome: "simulated",
			})
		}
	}

	if item.Options != nil {
		cost := item.Options.CreditCost()
		if !contains(item.Allowed, pulse.ActionComment) {
			cost.AI = 0
		}
		out.Credits = cost
	}

	s.logger.Debugw("Simulated item",
		logger.FieldRunID, item.RunID,
		logger.FieldKind, item.Kind,
		logger.FieldTarget, item.Target.Key(),
		"metrics", out.Metrics)
	return out, nil
}

// Candidates invents targets for search-driven kinds. Imports have no source
// besides the user's list, so none are returned for them.
func (s *Simulated) Candidates(_ context.Context, kind pulse.Kind, opts pulse.Options, limit int) ([]pulse.Target, error) {
	if kind == pulse.KindProfileImport || limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	start := s.served[kind]
	s.served[kind] += limit
	s.mu.Unlock()

	targets := make([]pulse.Target, limit)
	for i := range targets {
		n := start + i + 1
		switch o := opts.(type) {
		case pulse.PeopleSearchOptions:
			slug := slugify(o.Keyword)
			targets[i] = pulse.Target{
				URL:  fmt.Sprintf("https://www.linkedin.com/in/%s-%d", slug, n),
				Name: fmt.Sprintf("%s prospect %d", o.Keyword, n),
			}
		default:
			targets[i] = pulse.Target{
				ID:   fmt.Sprintf("urn:li:activity:sim-%d", n),
				Name: fmt.Sprintf("Simulated post %d", n),
			}
		}
	}
	return targets, nil
}

// Executed returns how many items reached the executor.
func (s *Simulated) Executed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

func subject(t pulse.Target, a pulse.Action, i int) string {
	if a == pulse.ActionConnection || a == pulse.ActionFollow {
		return t.Key()
	}
	return fmt.Sprintf("%s#post-%d", t.Key(), i+1)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "profile"
	}
	return s
}

func contains(actions []pulse.Action, a pulse.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
