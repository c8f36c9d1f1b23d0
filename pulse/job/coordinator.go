// Package job owns the automation state machine. Exactly one Coordinator runs
// in the executor process; every other component reads job state, none writes it.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/progress"
	"github.com/teranos/linkpulse/pulse/quota"
	"github.com/teranos/linkpulse/pulse/schedule"
)

// Executor performs one unit of work. Errors classified as communication
// failures abort the run; any other error fails only the item.
type Executor interface {
	Execute(ctx context.Context, item pulse.Item) (pulse.Outcome, error)
}

// TargetSource supplies fresh candidates for scheduled runs when the backlog runs short.
type TargetSource interface {
	Candidates(ctx context.Context, kind pulse.Kind, opts pulse.Options, limit int) ([]pulse.Target, error)
}

// QuotaGuard is the subset of the quota guard the coordinator consults.
type QuotaGuard interface {
	Permitted(kind pulse.Kind) bool
	CanStart(kind pulse.Kind, opts pulse.Options, estimated int) (*quota.Capacity, error)
	Allowance(kind pulse.Kind, opts pulse.Options) (*quota.Allowance, error)
	Commit(kind pulse.Kind, outcome pulse.Outcome) error
}

// Config tunes runs.
type Config struct {
	// ItemsPerRun caps scheduled runs per kind. Zero or missing means DefaultItemsPerRun.
	ItemsPerRun map[pulse.Kind]int
	// ActionDelay spaces consecutive executor calls of one run.
	ActionDelay time.Duration
}

// DefaultItemsPerRun caps a scheduled run when no per-kind value is configured.
const DefaultItemsPerRun = 10

// StartRequest asks for a new run.
type StartRequest struct {
	Kind       pulse.Kind      `json:"kind"`
	Targets    []pulse.Target  `json:"targets"`
	Options    json.RawMessage `json:"options"`
	Trigger    Trigger         `json:"trigger,omitempty"`
	ScheduleID string          `json:"scheduleId,omitempty"`
}

// Coordinator drives runs: idle -> running -> stopping -> idle.
type Coordinator struct {
	kv       *kv.Store
	guard    QuotaGuard
	ledger   *history.Ledger
	reporter *progress.Reporter
	backlog  *Backlog
	executor Executor
	source   TargetSource

	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger
	now      func() time.Time

	mu     sync.Mutex
	cfg    Config
	active map[string]*run // by exclusion group
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Store    *kv.Store
	Guard    QuotaGuard
	Ledger   *history.Ledger
	Reporter *progress.Reporter
	Backlog  *Backlog
	Executor Executor
	Source   TargetSource // optional
}

// NewCoordinator creates a coordinator. Runs live until Shutdown.
func NewCoordinator(deps Deps, cfg Config, log *zap.SugaredLogger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	if deps.Backlog == nil {
		deps.Backlog = NewBacklog(deps.Store)
	}
	return &Coordinator{
		kv:       deps.Store,
		guard:    deps.Guard,
		ledger:   deps.Ledger,
		reporter: deps.Reporter,
		backlog:  deps.Backlog,
		executor: deps.Executor,
		source:   deps.Source,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
		now:      time.Now,
		cfg:      cfg,
		active:   make(map[string]*run),
	}
}

// SetConfig replaces the run configuration. Runs already started keep their pacing.
func (c *Coordinator) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Backlog returns the target backlog.
func (c *Coordinator) Backlog() *Backlog { return c.backlog }

// SetClock sets the time source for run timestamps. Call before the first Start.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Start validates req and, when every precondition holds, begins a run.
// Preconditions are checked in order: permission, conflict, quota, targets.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (*JobState, error) {
	if !req.Kind.Valid() {
		return nil, errors.NewValidationError("unknown automation kind %q", req.Kind)
	}
	opts, err := pulse.DecodeOptions(req.Kind, req.Options)
	if err != nil {
		return nil, err
	}
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}

	if !c.guard.Permitted(req.Kind) {
		return nil, errors.NewPermissionError("%s is not part of the active plan", req.Kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	group := req.Kind.ExclusionGroup()
	if r, busy := c.active[group]; busy {
		err := errors.NewConflictError("%s job already %s", r.state.Kind, r.status())
		return nil, errors.WithDetail(err, fmt.Sprintf("Run ID: %s", r.state.RunID))
	}

	// An empty target list is rejected after quota, so only a real count caps capacity
	estimated := len(req.Targets)
	if estimated == 0 {
		estimated = -1
	}
	capacity, err := c.guard.CanStart(req.Kind, opts, estimated)
	if err != nil {
		return nil, errors.Wrap(err, "check quota")
	}
	if capacity.Items <= 0 {
		err := errors.NewQuotaError("no %s capacity left", req.Kind)
		return nil, errors.WithDetail(err, fmt.Sprintf("Exhausted: %v", capacity.Exhausted))
	}

	if len(req.Targets) == 0 {
		return nil, errors.NewValidationError("%s job needs at least one target", req.Kind)
	}
	for _, t := range req.Targets {
		if t.Key() == "" {
			return nil, errors.NewValidationError("target needs an id or url")
		}
	}

	state := JobState{
		RunID:      uuid.NewString(),
		Kind:       req.Kind,
		Status:     StatusRunning,
		StartedAt:  c.now(),
		Targets:    req.Targets,
		Options:    req.Options,
		Trigger:    req.Trigger,
		ScheduleID: req.ScheduleID,
	}
	if err := c.kv.Put(kv.JobStateKey(req.Kind), state); err != nil {
		return nil, errors.Wrap(err, "persist job state")
	}
	if err := c.reporter.Start(req.Kind, state.RunID, len(state.Targets)); err != nil {
		_ = c.kv.Delete(kv.JobStateKey(req.Kind))
		return nil, errors.Wrap(err, "start progress")
	}

	limit := rate.Inf
	if c.cfg.ActionDelay > 0 {
		limit = rate.Every(c.cfg.ActionDelay)
	}
	r := &run{
		state:   state,
		opts:    opts,
		pacer:   rate.NewLimiter(limit, 1),
		done:    make(chan struct{}),
		log:     c.pulseLog.With(logger.FieldRunID, state.RunID, logger.FieldKind, state.Kind),
		summary: history.Session{RunID: state.RunID, Kind: state.Kind, Trigger: string(state.Trigger), StartedAt: state.StartedAt, Total: len(state.Targets)},
	}
	c.active[group] = r

	r.log.Infow("Job started",
		logger.FieldTotalCount, len(state.Targets),
		"trigger", state.Trigger,
		"capacity", capacity.Items)

	go c.execute(r)
	return state.clone(), nil
}

// Stop asks the run of kind to stop at the next item boundary.
func (c *Coordinator) Stop(kind pulse.Kind) (*JobState, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("unknown automation kind %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.active[kind.ExclusionGroup()]
	if !ok || r.state.Kind != kind {
		return nil, errors.Wrapf(errors.ErrNotRunning, "stop %s", kind)
	}
	if r.requestStop() {
		r.log.Infow("Stop requested", logger.FieldCurrent, r.cursor())
		if err := r.persist(c.kv); err != nil {
			r.log.Warnw("Failed to persist stopping state", logger.FieldError, err)
		}
	}
	return r.snapshot(), nil
}

// State returns the live state of kind, or the persisted one when no run is
// active in this process. Nil means idle.
func (c *Coordinator) State(kind pulse.Kind) (*JobState, error) {
	c.mu.Lock()
	r, ok := c.active[kind.ExclusionGroup()]
	c.mu.Unlock()
	if ok && r.state.Kind == kind {
		return r.snapshot(), nil
	}

	var st JobState
	found, err := c.kv.Get(kv.JobStateKey(kind), &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

// Wait blocks until the run of kind finishes or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, kind pulse.Kind) error {
	c.mu.Lock()
	r, ok := c.active[kind.ExclusionGroup()]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fire starts a scheduled run for entry. Targets come from the backlog first,
// then from the target source, capped at the kind's items-per-run.
func (c *Coordinator) Fire(ctx context.Context, entry schedule.Entry) error {
	opts, err := pulse.DecodeOptions(entry.Kind, entry.Options)
	if err != nil {
		return err
	}

	c.mu.Lock()
	limit := c.cfg.ItemsPerRun[entry.Kind]
	c.mu.Unlock()
	if limit <= 0 {
		limit = DefaultItemsPerRun
	}

	targets, err := c.backlog.Peek(entry.Kind, limit)
	if err != nil {
		return errors.Wrap(err, "read backlog")
	}
	if len(targets) < limit && c.source != nil {
		more, err := c.source.Candidates(ctx, entry.Kind, opts, limit-len(targets))
		if err != nil {
			return errors.Wrap(err, "collect candidates")
		}
		targets = appendUnique(targets, more, limit)
	}

	_, err = c.Start(ctx, StartRequest{
		Kind:       entry.Kind,
		Targets:    targets,
		Options:    entry.Options,
		Trigger:    TriggerScheduled,
		ScheduleID: entry.ID,
	})
	return err
}

// Recover resets job states left behind by an executor that died mid-run.
// Each one is closed with an interrupted session summary.
func (c *Coordinator) Recover() error {
	var errs error
	for _, kind := range pulse.Kinds {
		var st JobState
		found, err := c.kv.Get(kv.JobStateKey(kind), &st)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if !found {
			continue
		}

		logger.AddPulseOpenSymbol(c.logger).Warnw("Recovering interrupted job",
			logger.FieldRunID, st.RunID,
			logger.FieldKind, kind,
			logger.FieldCurrent, st.Cursor,
			logger.FieldTotalCount, len(st.Targets))

		if err := c.reporter.Finish(kind); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		if _, err := c.ledger.AppendSession(history.Session{
			RunID:      st.RunID,
			Kind:       kind,
			Trigger:    string(st.Trigger),
			StartedAt:  st.StartedAt,
			Total:      len(st.Targets),
			Processed:  st.Cursor,
			StopReason: StopInterrupted,
		}); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		if err := c.kv.Delete(kv.JobStateKey(kind)); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// Shutdown cancels every run and waits for them to finalize.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.Lock()
	runs := make([]*run, 0, len(c.active))
	for _, r := range c.active {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	log := logger.AddPulseCloseSymbol(c.logger)
	if len(runs) > 0 {
		log.Infow("Waiting for in-flight items", "runs", len(runs))
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			log.Warnw("Runs still active at shutdown deadline", logger.FieldError, ctx.Err())
			return errors.Wrap(ctx.Err(), "wait for runs")
		}
	}
	if len(runs) > 0 {
		log.Infow("All runs finalized", "runs", len(runs))
	}
	return nil
}

func appendUnique(targets, more []pulse.Target, limit int) []pulse.Target {
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		seen[t.Key()] = true
	}
	for _, t := range more {
		if len(targets) >= limit {
			break
		}
		if t.Key() == "" || seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		targets = append(targets, t)
	}
	return targets
}

func actionList(actions []pulse.Action) string {
	s := make([]string, len(actions))
	for i, a := range actions {
		s[i] = string(a)
	}
	return strings.Join(s, ",")
}
