package wslogs

import (
	"sync"
	"sync/atomic"
)

// Transport fans log batches out to registered clients
type Transport struct {
	clients map[string]chan *Batch
	mu      sync.RWMutex
	dropped atomic.Int64
}

// NewTransport creates a new WebSocket log transport
func NewTransport() *Transport {
	return &Transport{
		clients: make(map[string]chan *Batch),
	}
}

// RegisterClient registers a client to receive log batches
// The channel should have adequate buffering to prevent blocking
func (t *Transport) RegisterClient(id string, ch chan *Batch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[id] = ch
}

// UnregisterClient removes a client from receiving log batches
func (t *Transport) UnregisterClient(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, id)
}

// SendBatch sends a batch to every client. A full client channel drops the batch for that client.
func (t *Transport) SendBatch(batch *Batch) {
	if batch == nil || len(batch.Messages) == 0 {
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ch := range t.clients {
		select {
		case ch <- batch:
		default:
			t.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of registered clients
func (t *Transport) ClientCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Dropped returns how many batches were dropped on full client channels
func (t *Transport) Dropped() int64 {
	return t.dropped.Load()
}
