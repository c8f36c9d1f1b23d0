package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/quota"
)

// run is one active job. Only the run goroutine advances the cursor.
type run struct {
	opts  pulse.Options
	pacer *rate.Limiter
	done  chan struct{}
	log   *zap.SugaredLogger

	mu       sync.Mutex
	state    JobState
	stop     bool
	finished bool
	summary  history.Session
}

// requestStop sets the stop flag. Returns false if it was already set.
func (r *run) requestStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop {
		return false
	}
	r.stop = true
	r.state.Status = StatusStopping
	return true
}

func (r *run) stopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop
}

func (r *run) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

func (r *run) cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Cursor
}

func (r *run) snapshot() *JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// persist writes the current state. Writes are serialized with finish so a
// late write never resurrects the state of a finished run.
func (r *run) persist(store *kv.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil
	}
	return store.Put(kv.JobStateKey(r.state.Kind), r.state)
}

// advance moves the cursor past the current item and persists it.
func (r *run) advance(store *kv.Store) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Cursor++
	return r.state.Cursor, store.Put(kv.JobStateKey(r.state.Kind), r.state)
}

// execute is the per-kind item loop. Items run strictly one after another and
// every commit of item N lands before item N+1 starts.
func (c *Coordinator) execute(r *run) {
	kind := r.state.Kind
	ctx := c.ctx
	reason := StopCompleted
	var fatal error

	targets := r.snapshot().Targets
	for i := r.cursor(); i < len(targets); i++ {
		if r.stopRequested() {
			reason = StopRequested
			break
		}
		if ctx.Err() != nil {
			reason = StopShutdown
			break
		}

		allowance, err := c.guard.Allowance(kind, r.opts)
		if err != nil {
			fatal = errors.Wrap(err, "check item allowance")
			break
		}
		if allowance.HardLimit {
			if err := c.skipRemaining(r, targets[i:], allowance.Reason); err != nil {
				fatal = err
			}
			reason = StopQuota
			break
		}

		if err := r.pacer.Wait(ctx); err != nil {
			reason = StopShutdown
			break
		}

		if err := c.executeItem(ctx, r, i, targets[i], allowance); err != nil {
			fatal = err
			break
		}

		cursor, err := r.advance(c.kv)
		if err != nil {
			fatal = errors.Wrap(err, "persist cursor")
			break
		}
		if _, err := c.reporter.Advance(kind, cursor); err != nil {
			fatal = errors.Wrap(err, "advance progress")
			break
		}
	}

	if fatal != nil {
		reason = StopError
		if ctx.Err() != nil {
			reason = StopShutdown
		}
	}
	c.finalize(r, reason, fatal)
}

// executeItem runs one target. Only a fatal error is returned; item failures
// are recorded and absorbed.
func (c *Coordinator) executeItem(ctx context.Context, r *run, index int, target pulse.Target, allowance *quota.Allowance) error {
	kind := r.state.Kind
	item := pulse.Item{
		RunID:   r.state.RunID,
		Kind:    kind,
		Index:   index,
		Target:  target,
		Options: r.opts,
		Allowed: allowance.Allowed,
	}

	start := time.Now()
	outcome, err := c.executor.Execute(ctx, item)
	duration := time.Since(start)
	log := r.log.With(logger.FieldTarget, target.Key(), logger.FieldDurationMS, duration.Milliseconds())

	if err != nil {
		rec := history.Record{
			RunID:   r.state.RunID,
			Kind:    kind,
			Target:  target,
			Outcome: history.OutcomeFailed,
			Error:   err.Error(),
		}
		if errors.IsFatal(err) {
			log.Errorw("Executor unreachable, aborting run", logger.FieldError, err)
			// Best effort: storage may be what failed
			_, _ = c.ledger.Append(rec)
			r.count(history.OutcomeFailed, pulse.Metrics{})
			return errors.Wrapf(err, "execute item %d", index)
		}

		log.Warnw("Item failed", logger.FieldError, err)
		if _, err := c.ledger.Append(rec); err != nil {
			return errors.Wrap(err, "record failed item")
		}
		// Recorded failures leave the queue; fatal and quota-skipped targets stay
		if err := c.backlog.Ack(kind, target.Key()); err != nil {
			return errors.Wrap(err, "acknowledge failed target")
		}
		r.count(history.OutcomeFailed, pulse.Metrics{})
		return nil
	}

	for _, a := range allowance.Exhausted {
		outcome.Skipped = append(outcome.Skipped, a)
		outcome.Details = append(outcome.Details, pulse.Detail{Action: a, Outcome: string(history.OutcomeSkipped), Note: "daily limit reached"})
	}

	if err := c.guard.Commit(kind, outcome); err != nil {
		return errors.Wrap(err, "commit quota")
	}
	if _, err := c.ledger.Append(history.Record{
		RunID:   r.state.RunID,
		Kind:    kind,
		Target:  target,
		Outcome: history.OutcomeSuccess,
		Metrics: outcome.Metrics,
		Details: outcome.Details,
	}); err != nil {
		return errors.Wrap(err, "record item")
	}
	if err := c.backlog.Ack(kind, target.Key()); err != nil {
		return errors.Wrap(err, "acknowledge target")
	}
	r.count(history.OutcomeSuccess, outcome.Metrics)

	log.Infow("Item done",
		logger.FieldOutcome, history.OutcomeSuccess,
		"metrics", outcome.Metrics,
		"skipped", actionList(outcome.Skipped))
	return nil
}

// skipRemaining records every unprocessed target as skipped for quota.
func (c *Coordinator) skipRemaining(r *run, targets []pulse.Target, reason string) error {
	r.log.Warnw("Quota exhausted mid-run, skipping remaining targets",
		"reason", reason,
		logger.FieldCount, len(targets))

	for _, t := range targets {
		if _, err := c.ledger.Append(history.Record{
			RunID:   r.state.RunID,
			Kind:    r.state.Kind,
			Target:  t,
			Outcome: history.OutcomeSkipped,
			Reason:  "quota: " + reason,
		}); err != nil {
			return errors.Wrap(err, "record skipped target")
		}
		r.count(history.OutcomeSkipped, pulse.Metrics{})
	}
	return nil
}

func (r *run) count(o history.Outcome, m pulse.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case history.OutcomeSuccess:
		r.summary.Processed++
		r.summary.Succeeded++
		r.summary.Metrics = r.summary.Metrics.Add(m)
	case history.OutcomeFailed:
		r.summary.Processed++
		r.summary.Failed++
	case history.OutcomeSkipped:
		r.summary.Skipped++
	}
}

// finalize returns the kind to idle: progress cleared, session recorded, state removed.
// Cleanup continues past storage errors so the kind is never left blocked in memory.
func (c *Coordinator) finalize(r *run, reason string, fatal error) {
	kind := r.state.Kind

	r.mu.Lock()
	r.finished = true
	session := r.summary
	r.mu.Unlock()
	session.StopReason = reason
	session.FinishedAt = c.now()
	if fatal != nil {
		session.Error = fatal.Error()
	}

	if err := c.reporter.Finish(kind); err != nil {
		r.log.Warnw("Failed to clear progress", logger.FieldError, err)
	}
	if _, err := c.ledger.AppendSession(session); err != nil {
		r.log.Warnw("Failed to record session", logger.FieldError, err)
	}
	if err := c.kv.Delete(kv.JobStateKey(kind)); err != nil {
		r.log.Warnw("Failed to clear job state", logger.FieldError, err)
	}

	c.mu.Lock()
	delete(c.active, kind.ExclusionGroup())
	c.mu.Unlock()
	close(r.done)

	fields := []interface{}{
		"reason", reason,
		"processed", session.Processed,
		"succeeded", session.Succeeded,
		"failed", session.Failed,
		"skipped", session.Skipped,
		"metrics", session.Metrics,
		logger.FieldDurationMS, session.FinishedAt.Sub(session.StartedAt).Milliseconds(),
	}
	if fatal != nil {
		r.log.Errorw("Job aborted", append(fields, logger.FieldError, fatal, logger.FieldErrorCode, errors.Code(fatal))...)
		return
	}
	r.log.Infow("Job finished", fields...)
}
