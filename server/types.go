package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/schedule"
	"github.com/teranos/linkpulse/server/wslogs"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// ShutdownTimeout bounds graceful shutdown, including the wait for
	// running jobs to reach an item boundary
	ShutdownTimeout = 60 * time.Second
	// ClientVersionHeader carries the UI or CLI version
	ClientVersionHeader = "X-Client-Version"
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Command is one request on the command channel. Which fields matter depends on Action.
type Command struct {
	Action  string          `json:"action"`
	Kind    pulse.Kind      `json:"kind,omitempty"`
	Time    string          `json:"time,omitempty"` // HH:MM for addSchedule, or the entry to remove
	ID      string          `json:"id,omitempty"`   // schedule entry id for removeSchedule
	Enabled *bool           `json:"enabled,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
	Targets []pulse.Target  `json:"targets,omitempty"`
	Filter  *history.Filter `json:"filter,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Response is the envelope every command answers with. Data fields are
// flattened next to success and error.
type Response struct {
	Success bool
	Error   string
	Code    string
	Hints   []string
	Data    map[string]interface{}
}

// MarshalJSON flattens Data into the envelope: {"success":true,"schedule":{...}}.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
		out["code"] = r.Code
	}
	if len(r.Hints) > 0 {
		out["hints"] = r.Hints
	}
	return json.Marshal(out)
}

// ClientMessage is what a WebSocket client sends
type ClientMessage struct {
	Type      string  `json:"type"` // "command" or "ping"
	RequestID string  `json:"requestId,omitempty"`
	Command   Command `json:"command"`
}

// CommandReply answers a ClientMessage of type "command"
type CommandReply struct {
	Type      string   `json:"type"` // "response"
	RequestID string   `json:"requestId,omitempty"`
	Response  Response `json:"response"`
}

// HelloMessage is the first message on a new WebSocket connection
type HelloMessage struct {
	Type     string   `json:"type"` // "hello"
	ClientID string   `json:"clientId"`
	Version  string   `json:"version"`
	State    string   `json:"state"`
	Kinds    []string `json:"kinds"`
}

// StorageChangeMessage pushes a committed durable-store write
type StorageChangeMessage struct {
	Type    string          `json:"type"` // "storage_change"
	Topic   string          `json:"topic"`
	Key     string          `json:"key"`
	Kind    pulse.Kind      `json:"kind,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	At      time.Time       `json:"at"`
}

// CountdownMessage pushes every kind's countdown after each tick
type CountdownMessage struct {
	Type       string               `json:"type"` // "countdown"
	Countdowns []schedule.Countdown `json:"countdowns"`
}

// LogsMessage pushes run log lines
type LogsMessage struct {
	Type string        `json:"type"` // "logs"
	Data *wslogs.Batch `json:"data"`
}
