package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/linkpulse/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes an error envelope: {"success":false,"error":...,"code":...}
func writeError(w http.ResponseWriter, status int, err error) {
	_ = writeJSON(w, status, errorResponse(err))
}

// readJSON reads and decodes a JSON request body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("invalid request body: %v", err))
		return err
	}
	return nil
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, errors.NewValidationError("method %s not allowed", r.Method))
		return false
	}
	return true
}

// statusFor maps a command error code to the HTTP status of /api/command.
func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodePermission:
		return http.StatusForbidden
	case errors.CodeConflict, errors.CodeNotRunning:
		return http.StatusConflict
	case errors.CodeQuota:
		return http.StatusTooManyRequests
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeCommunication:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
