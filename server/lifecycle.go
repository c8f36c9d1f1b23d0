package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
)

// Start finds a free port (the requested one first), starts the hub and the
// scheduler ticker, and serves until Stop. It returns nil after a clean Stop.
func (s *Server) Start(port int) error {
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", actualPort)
	}
	return s.Serve(ln)
}

// Serve runs the server on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()
	if s.deps.Ticker != nil {
		s.deps.Ticker.Start()
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://%s", ln.Addr()),
		logger.FieldAddress, ln.Addr().String(),
	)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

// Stop drains the server: new commands are refused, the ticker stops, running
// jobs stop at their next item boundary, then clients are disconnected.
func (s *Server) Stop() error {
	if s.State() != ServerStateRunning {
		return nil
	}
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if s.deps.Ticker != nil {
		s.deps.Ticker.Stop()
	}

	var shutdownErr error
	if err := s.deps.Jobs.Shutdown(ctx); err != nil {
		s.logger.Warnw("Jobs did not stop in time", logger.FieldError, err.Error())
		shutdownErr = err
	}

	// Close connections before cancelling so the pumps exit on their own
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	srv := s.httpServer
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", "count", len(clientsToClose))
		for _, client := range clientsToClose {
			s.logTransport.UnregisterClient(client.id)
			client.conn.Close()
		}
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP shutdown error", logger.FieldError, err.Error())
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-ctx.Done():
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	return shutdownErr
}
