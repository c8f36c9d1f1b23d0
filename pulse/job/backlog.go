package job

import (
	"sync"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

// Backlog holds targets queued for later scheduled runs. A target leaves the
// backlog only when its item outcome has been committed.
type Backlog struct {
	kv *kv.Store
	mu sync.Mutex
}

// NewBacklog creates a backlog on the durable store.
func NewBacklog(store *kv.Store) *Backlog {
	return &Backlog{kv: store}
}

// Push appends targets not already queued. Returns how many were added.
func (b *Backlog) Push(kind pulse.Kind, targets []pulse.Target) (int, error) {
	if !kind.Valid() {
		return 0, errors.NewValidationError("unknown automation kind %q", kind)
	}
	for _, t := range targets {
		if t.Key() == "" {
			return 0, errors.NewValidationError("target needs an id or url")
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	queued, err := b.load(kind)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(queued))
	for _, t := range queued {
		seen[t.Key()] = true
	}
	added := 0
	for _, t := range targets {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		queued = append(queued, t)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, errors.Wrap(b.kv.Put(kv.BacklogKey(kind), queued), "store backlog")
}

// Peek returns up to n targets from the front without removing them.
func (b *Backlog) Peek(kind pulse.Kind, n int) ([]pulse.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queued, err := b.load(kind)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(queued) > n {
		queued = queued[:n]
	}
	return queued, nil
}

// Ack removes the target with key. Unknown keys are ignored.
func (b *Backlog) Ack(kind pulse.Kind, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	queued, err := b.load(kind)
	if err != nil {
		return err
	}
	for i, t := range queued {
		if t.Key() == key {
			queued = append(queued[:i], queued[i+1:]...)
			return errors.Wrap(b.kv.Put(kv.BacklogKey(kind), queued), "store backlog")
		}
	}
	return nil
}

// List returns the whole backlog of kind.
func (b *Backlog) List(kind pulse.Kind) ([]pulse.Target, error) {
	return b.Peek(kind, -1)
}

func (b *Backlog) load(kind pulse.Kind) ([]pulse.Target, error) {
	var queued []pulse.Target
	if _, err := b.kv.Get(kv.BacklogKey(kind), &queued); err != nil {
		return nil, errors.Wrapf(err, "load backlog for %s", kind)
	}
	return queued, nil
}
