package job

import (
	"encoding/json"
	"time"

	"github.com/teranos/linkpulse/pulse"
)

// Status is the coordinator state of one kind.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Stop reasons recorded on the session summary.
const (
	StopCompleted   = "completed"
	StopRequested   = "stopped"
	StopQuota       = "quota"
	StopError       = "error"
	StopShutdown    = "shutdown"
	StopInterrupted = "interrupted"
)

// JobState is the persisted shape of jobState:<kind>. It is absent while the kind is idle.
type JobState struct {
	RunID      string          `json:"runId"`
	Kind       pulse.Kind      `json:"kind"`
	Status     Status          `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	Targets    []pulse.Target  `json:"targets"`
	Cursor     int             `json:"cursor"`
	Options    json.RawMessage `json:"options,omitempty"`
	Trigger    Trigger         `json:"trigger"`
	ScheduleID string          `json:"scheduleId,omitempty"`
}

// Active reports whether the state blocks another start of the same group.
func (s *JobState) Active() bool {
	return s != nil && (s.Status == StatusRunning || s.Status == StatusStopping)
}

// Remaining is the number of targets not yet processed.
func (s *JobState) Remaining() int {
	return len(s.Targets) - s.Cursor
}

func (s JobState) clone() *JobState {
	s.Targets = append([]pulse.Target(nil), s.Targets...)
	return &s
}
