package server

import (
	"net/http"

	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/version"
)

// Handler returns the HTTP routes of the command channel.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/command", s.corsMiddleware(s.handleCommand))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	return mux
}

// corsMiddleware adds CORS headers for origins allowed by server.allowed_origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+ClientVersionHeader)

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// clientVersion reads the caller's version from the header, or from the
// "version" query parameter for browser WebSockets that cannot set headers.
func clientVersion(r *http.Request) string {
	if v := r.Header.Get(ClientVersionHeader); v != "" {
		return v
	}
	return r.URL.Query().Get("version")
}

// checkClientVersion writes a rejection and returns false when the caller is
// older than server.min_client_version.
func (s *Server) checkClientVersion(w http.ResponseWriter, r *http.Request) bool {
	if err := version.CheckClient(clientVersion(r), s.options().MinClientVersion); err != nil {
		s.logger.Warnw("Client version rejected",
			"client_version", clientVersion(r),
			"remote_addr", r.RemoteAddr,
			logger.FieldError, err.Error())
		writeError(w, http.StatusUpgradeRequired, err)
		return false
	}
	return true
}

// handleCommand serves POST /api/command
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.checkClientVersion(w, r) {
		return
	}
	var cmd Command
	if err := readJSON(w, r, &cmd); err != nil {
		return
	}

	resp := s.Execute(r.Context(), cmd)
	if err := writeJSON(w, statusFor(resp.Code), resp); err != nil {
		s.logger.Debugw("Failed to write command response", logger.FieldError, err.Error())
	}
}

// handleHealth reports liveness and lifecycle state
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if s.State() != ServerStateRunning {
		status = http.StatusServiceUnavailable
	}
	kinds := make([]string, 0, len(pulse.Kinds))
	for _, k := range pulse.Kinds {
		kinds = append(kinds, string(k))
	}
	_ = writeJSON(w, status, map[string]interface{}{
		"status":  s.State().String(),
		"version": version.Get().Version,
		"clients": s.ClientCount(),
		"kinds":   kinds,
	})
}
