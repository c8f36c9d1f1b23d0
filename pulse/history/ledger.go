// Package history is the bounded audit trail of completed work: one record per
// item, newest first, plus session-level summaries of whole runs.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

// Default capacities of the per-kind ledgers.
const (
	DefaultItemCap    = 200
	DefaultSessionCap = 50
)

// Outcome of one item.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Record is one processed target.
type Record struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      pulse.Kind     `json:"kind"`
	Target    pulse.Target   `json:"target"`
	Outcome   Outcome        `json:"outcome"`
	Metrics   pulse.Metrics  `json:"metrics"`
	Details   []pulse.Detail `json:"details,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Session summarizes one run.
type Session struct {
	ID         string        `json:"id"`
	RunID      string        `json:"runId"`
	Kind       pulse.Kind    `json:"kind"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Metrics    pulse.Metrics `json:"metrics"`
	StopReason string        `json:"stopReason"`
	Error      string        `json:"error,omitempty"`
}

// Filter narrows List results.
type Filter struct {
	// Query matches case-insensitively against target name, url and id.
	Query string `json:"query,omitempty"`
	// IncludeDetail keeps per-item detail rows; otherwise they are stripped.
	IncludeDetail bool `json:"includeDetail,omitempty"`
	// Outcome keeps only records with this outcome when set.
	Outcome Outcome `json:"outcome,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// Ledger stores bounded FIFO histories per kind.
type Ledger struct {
	kv         *kv.Store
	itemCap    int
	sessionCap int
	now        func() time.Time
	mu         sync.Mutex
}

// NewLedger creates a ledger with the given caps. Non-positive caps use the defaults.
func NewLedger(store *kv.Store, itemCap, sessionCap int) *Ledger {
	if itemCap <= 0 {
		itemCap = DefaultItemCap
	}
	if sessionCap <= 0 {
		sessionCap = DefaultSessionCap
	}
	return &Ledger{kv: store, itemCap: itemCap, sessionCap: sessionCap, now: time.Now}
}

// Append pushes rec to the front of its kind's ledger and evicts the oldest beyond the cap.
func (l *Ledger) Append(rec Record) (Record, error) {
	if !rec.Kind.Valid() {
		return rec, errors.NewValidationError("history record has unknown kind %q", rec.Kind)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(rec.Kind)
	if err != nil {
		return rec, err
	}
	records = pushFront(records, rec, l.itemCap)
	if err := l.kv.Put(kv.HistoryKey(rec.Kind), records); err != nil {
		return rec, errors.Wrap(err, "append history")
	}
	return rec, nil
}

// List returns records of kind, newest first.
func (l *Ledger) List(kind pulse.Kind, f Filter) ([]Record, error) {
	l.mu.Lock()
	records, err := l.load(kind)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Outcome != "" && r.Outcome != f.Outcome {
			continue
		}
		if q != "" && !matches(r.Target, q) {
			continue
		}
		if !f.IncludeDetail {
			r.Details = nil
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Clear drops every record and session of kind.
func (l *Ledger) Clear(kind pulse.Kind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.kv.Delete(kv.HistoryKey(kind)); err != nil {
		return errors.Wrap(err, "clear history")
	}
	return errors.Wrap(l.kv.Delete(kv.SessionsKey(kind)), "clear sessions")
}

// AppendSession records a run summary.
func (l *Ledger) AppendSession(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.FinishedAt.IsZero() {
		s.FinishedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var sessions []Session
	if _, err := l.kv.Get(kv.SessionsKey(s.Kind), &sessions); err != nil {
		return s, errors.Wrap(err, "load sessions")
	}
	sessions = pushFront(sessions, s, l.sessionCap)
	if err := l.kv.Put(kv.SessionsKey(s.Kind), sessions); err != nil {
		return s, errors.Wrap(err, "append session")
	}
	return s, nil
}

// Sessions returns run summaries of kind, newest first.
func (l *Ledger) Sessions(kind pulse.Kind, limit int) ([]Session, error) {
	var sessions []Session
	if _, err := l.kv.Get(kv.SessionsKey(kind), &sessions); err != nil {
		return nil, errors.Wrap(err, "load sessions")
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// LastSession returns the newest summary, or nil if kind never ran.
func (l *Ledger) LastSession(kind pulse.Kind) (*Session, error) {
	sessions, err := l.Sessions(kind, 1)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

func (l *Ledger) load(kind pulse.Kind) ([]Record, error) {
	var records []Record
	if _, err := l.kv.Get(kv.HistoryKey(kind), &records); err != nil {
		return nil, errors.Wrapf(err, "load history for %s", kind)
	}
	return records, nil
}

func pushFront[T any](list []T, v T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, v)
	for _, item := range list {
		if len(out) == limit {
			break
		}
		out = append(out, item)
	}
	return out
}

func matches(t pulse.Target, q string) bool {
	return strings.Contains(strings.ToLower(t.Name), q) ||
		strings.Contains(strings.ToLower(t.URL), q) ||
		strings.Contains(strings.ToLower(t.ID), q)
}
