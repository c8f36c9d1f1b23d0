// Package progress keeps one durable progress snapshot per running job and
// pushes every change to live listeners. Late listeners use Attach to combine
// the stored snapshot with the push stream.
package progress

import (
	"sync"
	"time"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

// SubscriberChannelBufferSize is the buffer size for progress subscriber channels
const SubscriberChannelBufferSize = 100

// Snapshot is the durable progress record of progress:<kind>.
type Snapshot struct {
	Kind        pulse.Kind `json:"kind"`
	RunID       string     `json:"runId"`
	Current     int        `json:"current"`
	Total       int        `json:"total"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// Update is one pushed change. Finished means the snapshot was cleared.
type Update struct {
	Snapshot Snapshot `json:"snapshot"`
	Finished bool     `json:"finished,omitempty"`
}

// Reporter writes snapshots and fans out updates.
type Reporter struct {
	kv  *kv.Store
	now func() time.Time

	mu          sync.Mutex
	subscribers []chan Update
}

// NewReporter creates a reporter on the durable store.
func NewReporter(store *kv.Store) *Reporter {
	return &Reporter{kv: store, now: time.Now}
}

// Start resets the snapshot of kind for a new run.
func (r *Reporter) Start(kind pulse.Kind, runID string, total int) error {
	if total < 0 {
		return errors.NewValidationError("progress total must not be negative")
	}
	snap := Snapshot{Kind: kind, RunID: runID, Total: total, LastUpdated: r.now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.kv.Put(kv.ProgressKey(kind), snap); err != nil {
		return errors.Wrap(err, "start progress")
	}
	r.notify(Update{Snapshot: snap})
	return nil
}

// Advance moves the snapshot of kind forward to current.
// Values are clamped to the total and never move backwards.
func (r *Reporter) Advance(kind pulse.Kind, current int) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	found, err := r.kv.Get(kv.ProgressKey(kind), &snap)
	if err != nil {
		return snap, err
	}
	if !found {
		return snap, errors.Wrapf(errors.ErrNotRunning, "advance progress of %s", kind)
	}

	if current > snap.Total {
		current = snap.Total
	}
	if current <= snap.Current {
		return snap, nil
	}
	snap.Current = current
	snap.LastUpdated = r.now()

	if err := r.kv.Put(kv.ProgressKey(kind), snap); err != nil {
		return snap, errors.Wrap(err, "advance progress")
	}
	r.notify(Update{Snapshot: snap})
	return snap, nil
}

// Finish clears the snapshot of kind.
func (r *Reporter) Finish(kind pulse.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	if _, err := r.kv.Get(kv.ProgressKey(kind), &snap); err != nil {
		return err
	}
	if err := r.kv.Delete(kv.ProgressKey(kind)); err != nil {
		return errors.Wrap(err, "finish progress")
	}
	snap.Kind = kind
	snap.LastUpdated = r.now()
	r.notify(Update{Snapshot: snap, Finished: true})
	return nil
}

// Get reads the durable snapshot. Returns nil when no job of kind is running.
func (r *Reporter) Get(kind pulse.Kind) (*Snapshot, error) {
	var snap Snapshot
	found, err := r.kv.Get(kv.ProgressKey(kind), &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// Subscribe returns a channel receiving every update of every kind.
func (r *Reporter) Subscribe() chan Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Update, SubscriberChannelBufferSize)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Unsubscribe removes ch. The caller owns the channel.
func (r *Reporter) Unsubscribe(ch chan Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			return
		}
	}
}

// Attach subscribes and then pulls the current snapshot of kind. Subscribing
// first means an Advance racing with the pull is either in the snapshot or on
// the channel; pulling first could miss it. An update may show up in both,
// which is harmless since progress never moves backwards. The snapshot is nil
// when nothing is running.
func (r *Reporter) Attach(kind pulse.Kind) (*Snapshot, chan Update, error) {
	ch := r.Subscribe()
	snap, err := r.Get(kind)
	if err != nil {
		r.Unsubscribe(ch)
		return nil, nil, err
	}
	return snap, ch, nil
}

// notify must be called with r.mu held.
func (r *Reporter) notify(u Update) {
	for _, ch := range r.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}
