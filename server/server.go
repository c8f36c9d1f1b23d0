// Package server is the executor process's command channel: HTTP and
// WebSocket commands in, durable-store changes and countdowns pushed out.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/progress"
	"github.com/teranos/linkpulse/pulse/quota"
	"github.com/teranos/linkpulse/pulse/schedule"
	"github.com/teranos/linkpulse/server/wslogs"
)

// Deps are the executor components the server exposes.
type Deps struct {
	Store     *kv.Store
	Schedules *schedule.Store
	Ticker    *schedule.Ticker
	Jobs      *job.Coordinator
	Guard     *quota.Guard
	Ledger    *history.Ledger
	Progress  *progress.Reporter
	// LogTransport streams run log lines to clients; optional.
	LogTransport *wslogs.Transport
}

// Options are the server settings from the server config section.
type Options struct {
	AllowedOrigins   []string
	MinClientVersion string
}

// Server serves the command channel of one executor process.
type Server struct {
	deps     Deps
	commands map[string]commandFunc
	now      func() time.Time

	optsMu sync.RWMutex
	opts   Options

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	dispatcher     *kv.Dispatcher
	logTransport   *wslogs.Transport
	httpServer     *http.Server
	logger         *zap.SugaredLogger
	broadcastDrops atomic.Int64
	state          atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. Call Run (or ListenAndServe) to start the hub.
func New(deps Deps, opts Options, log *zap.SugaredLogger) (*Server, error) {
	if deps.Store == nil || deps.Schedules == nil || deps.Jobs == nil || deps.Guard == nil ||
		deps.Ledger == nil || deps.Progress == nil {
		return nil, errors.New("server requires store, schedules, jobs, guard, ledger and progress")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	transport := deps.LogTransport
	if transport == nil {
		transport = wslogs.NewTransport()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:         deps,
		now:          time.Now,
		opts:         opts,
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		dispatcher:   kv.NewDispatcher(log),
		logTransport: transport,
		logger:       log,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.commands = s.commandTable()
	if err := s.registerPushHandlers(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "register storage push handlers")
	}
	s.state.Store(int32(ServerStateRunning))
	return s, nil
}

// SetClock sets the time source for countdown queries.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// SetOptions replaces origins and the client version gate (config reload).
func (s *Server) SetOptions(opts Options) {
	s.optsMu.Lock()
	s.opts = opts
	s.optsMu.Unlock()
}

func (s *Server) options() Options {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return s.opts
}

// Run starts the hub and the push loops. It returns when the server stops.
func (s *Server) Run() {
	s.startPushLoops()

	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logTransport.RegisterClient(client.id, client.sendLog)
	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", total,
	)
}

// handleClientUnregister handles a client disconnection
func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	s.logTransport.UnregisterClient(client.id)
	client.close()

	s.logger.Infow("Client disconnected",
		"client_id", client.id,
		"total_clients", total,
	)
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// State returns the current lifecycle state
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Infow("Server state changed", "new_state", state.String())
}
