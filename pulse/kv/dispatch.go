package kv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
)

// Handler reacts to a committed change.
type Handler func(Change)

// Dispatcher routes changes to exactly one handler per key.
// A pattern ending in '*' matches every key with that prefix; exact keys win over
// patterns and longer patterns win over shorter ones.
type Dispatcher struct {
	mu       sync.RWMutex
	exact    map[string]Handler
	prefixes map[string]Handler
	ordered  []string // prefixes, longest first
	fallback Handler
	logger   *zap.SugaredLogger
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher(logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		exact:    make(map[string]Handler),
		prefixes: make(map[string]Handler),
		logger:   logger,
	}
}

// Handle registers h for key. Registering a second handler for the same key fails.
func (d *Dispatcher) Handle(key string, h Handler) error {
	if key == "" || h == nil {
		return errors.NewValidationError("dispatch key and handler are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if prefix, ok := strings.CutSuffix(key, "*"); ok {
		if _, dup := d.prefixes[prefix]; dup {
			return errors.NewConflictError("handler already registered for %s", key)
		}
		d.prefixes[prefix] = h
		d.ordered = append(d.ordered, prefix)
		sort.Slice(d.ordered, func(i, j int) bool { return len(d.ordered[i]) > len(d.ordered[j]) })
		return nil
	}

	if _, dup := d.exact[key]; dup {
		return errors.NewConflictError("handler already registered for %s", key)
	}
	d.exact[key] = h
	return nil
}

// HandleUnmatched sets the handler for keys nothing else claims.
func (d *Dispatcher) HandleUnmatched(h Handler) {
	d.mu.Lock()
	d.fallback = h
	d.mu.Unlock()
}

// Dispatch calls the handler for c.Key. Returns false if no handler matched.
func (d *Dispatcher) Dispatch(c Change) bool {
	h := d.lookup(c.Key)
	if h == nil {
		return false
	}
	h(c)
	return true
}

func (d *Dispatcher) lookup(key string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if h, ok := d.exact[key]; ok {
		return h
	}
	for _, prefix := range d.ordered {
		if strings.HasPrefix(key, prefix) {
			return d.prefixes[prefix]
		}
	}
	return d.fallback
}

// Run dispatches changes from ch until ctx is done or ch is closed.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			if !d.Dispatch(c) && d.logger != nil {
				d.logger.Debugw("No handler for storage change", "key", c.Key)
			}
		}
	}
}
