// Package client is the thin command client a UI process uses to talk to the
// executor. It never touches durable state directly.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/internal/httpclient"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/pulse/quota"
	"github.com/teranos/linkpulse/pulse/schedule"
	"github.com/teranos/linkpulse/server"
	"github.com/teranos/linkpulse/version"
)

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = 15 * time.Second

// Client sends commands to a running executor.
type Client struct {
	baseURL string
	http    *httpclient.SaferClient
	version string
}

// New creates a client for the executor at baseURL (e.g. http://localhost:7787).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	allowPrivate := false
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// the executor listens on loopback
		http: httpclient.NewSaferClientWithOptions(timeout, httpclient.SaferClientOptions{
			BlockPrivateIP: &allowPrivate,
			UserAgent:      "linkpulse-cli/" + version.Version,
		}),
		version: version.Version,
	}
}

// envelope is the error part of every command response.
type envelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Hints   []string `json:"hints"`
}

// Do sends cmd and decodes the flattened response data into out (may be nil).
// Failures come back classified by the errors taxonomy.
func (c *Client) Do(ctx context.Context, cmd server.Command, out interface{}) error {
	headers := http.Header{server.ClientVersionHeader: []string{c.version}}

	var raw json.RawMessage
	err := c.http.PostJSON(ctx, c.baseURL+"/api/command", headers, cmd, &raw)
	if err != nil {
		var status *httpclient.StatusError
		if errors.As(err, &status) {
			var env envelope
			if jsonErr := json.Unmarshal([]byte(status.Body), &env); jsonErr == nil && env.Error != "" {
				return classify(cmd.Action, env)
			}
			return errors.WrapCommunication(err, cmd.Action)
		}
		return errors.WithHint(errors.WrapCommunication(err, cmd.Action), "is `linkpulse serve` running?")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if !env.Success {
		return classify(cmd.Action, env)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode response data")
}

// classify turns a failed envelope back into a sentinel-wrapped error.
func classify(action string, env envelope) error {
	var sentinel error
	switch env.Code {
	case errors.CodeValidation:
		sentinel = errors.ErrValidation
	case errors.CodePermission:
		sentinel = errors.ErrPermissionDenied
	case errors.CodeConflict:
		sentinel = errors.ErrConflict
	case errors.CodeQuota:
		sentinel = errors.ErrQuotaExceeded
	case errors.CodeItemFailed:
		sentinel = errors.ErrItemExecution
	case errors.CodeCommunication:
		sentinel = errors.ErrCommunication
	case errors.CodeNotFound:
		sentinel = errors.ErrNotFound
	case errors.CodeNotRunning:
		sentinel = errors.ErrNotRunning
	}

	var err error
	if sentinel != nil {
		err = errors.Wrap(sentinel, env.Error)
	} else {
		err = errors.Newf("%s", env.Error)
	}
	for _, h := range env.Hints {
		err = errors.WithHint(err, h)
	}
	return errors.Wrap(err, action)
}

// Health reports the executor's lifecycle state.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapCommunication(err, "health")
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode health")
	}
	return out, nil
}

func (c *Client) AddSchedule(ctx context.Context, kind pulse.Kind, at string, options json.RawMessage) (*schedule.Entry, error) {
	var out struct {
		Schedule *schedule.Entry `json:"schedule"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionAddSchedule, Kind: kind, Time: at, Options: options}, &out)
	return out.Schedule, err
}

// RemoveSchedule removes the entry with id or "HH:MM" time ref.
func (c *Client) RemoveSchedule(ctx context.Context, kind pulse.Kind, ref string) (bool, error) {
	cmd := server.Command{Action: server.ActionRemoveSchedule, Kind: kind}
	if _, err := schedule.ParseTime(ref); err == nil {
		cmd.Time = ref
	} else {
		cmd.ID = ref
	}
	var out struct {
		Removed bool `json:"removed"`
	}
	err := c.Do(ctx, cmd, &out)
	return out.Removed, err
}

func (c *Client) SetSchedulerEnabled(ctx context.Context, kind pulse.Kind, enabled bool) error {
	return c.Do(ctx, server.Command{Action: server.ActionSetSchedulerEnabled, Kind: kind, Enabled: &enabled}, nil)
}

func (c *Client) SchedulerStatus(ctx context.Context, kind pulse.Kind) (*schedule.Status, error) {
	out := &schedule.Status{Kind: kind}
	if err := c.Do(ctx, server.Command{Action: server.ActionGetSchedulerStatus, Kind: kind}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Countdown returns the HH:MM:SS countdown to the next run of kind, "" when none.
func (c *Client) Countdown(ctx context.Context, kind pulse.Kind) (*schedule.Countdown, error) {
	var out struct {
		Countdown string `json:"countdown"`
		Enabled   bool   `json:"enabled"`
		Next      string `json:"next"`
	}
	if err := c.Do(ctx, server.Command{Action: server.ActionGetSchedulerCountdown, Kind: kind}, &out); err != nil {
		return nil, err
	}
	return &schedule.Countdown{Kind: kind, Enabled: out.Enabled, Remaining: out.Countdown, Next: out.Next}, nil
}

func (c *Client) StartJob(ctx context.Context, kind pulse.Kind, targets []pulse.Target, options json.RawMessage) (*job.JobState, error) {
	var out struct {
		Job *job.JobState `json:"job"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionStartJob, Kind: kind, Targets: targets, Options: options}, &out)
	return out.Job, err
}

func (c *Client) StopJob(ctx context.Context, kind pulse.Kind) (*job.JobState, error) {
	var out struct {
		Job *job.JobState `json:"job"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionStopJob, Kind: kind}, &out)
	return out.Job, err
}

// Progress is the getJobProgress answer.
type Progress struct {
	Running     bool      `json:"running"`
	RunID       string    `json:"runId,omitempty"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

func (c *Client) Progress(ctx context.Context, kind pulse.Kind) (*Progress, error) {
	var out Progress
	if err := c.Do(ctx, server.Command{Action: server.ActionGetJobProgress, Kind: kind}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobState returns nil when kind is idle.
func (c *Client) JobState(ctx context.Context, kind pulse.Kind) (*job.JobState, error) {
	var out struct {
		Job *job.JobState `json:"job"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionGetJobState, Kind: kind}, &out)
	return out.Job, err
}

// JobSummary returns the last session of kind, nil before the first run.
func (c *Client) JobSummary(ctx context.Context, kind pulse.Kind) (*history.Session, error) {
	var out struct {
		Summary *history.Session `json:"summary"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionGetJobSummary, Kind: kind}, &out)
	return out.Summary, err
}

func (c *Client) History(ctx context.Context, kind pulse.Kind, filter history.Filter) ([]history.Record, error) {
	var out struct {
		History []history.Record `json:"history"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionGetHistory, Kind: kind, Filter: &filter}, &out)
	return out.History, err
}

func (c *Client) ClearHistory(ctx context.Context, kind pulse.Kind) error {
	return c.Do(ctx, server.Command{Action: server.ActionClearHistory, Kind: kind}, nil)
}

func (c *Client) ExportHistory(ctx context.Context, kind pulse.Kind) ([]history.Row, error) {
	var out struct {
		Rows []history.Row `json:"rows"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionExportHistory, Kind: kind}, &out)
	return out.Rows, err
}

// QueueTargets adds targets to the backlog of kind and returns how many were new.
func (c *Client) QueueTargets(ctx context.Context, kind pulse.Kind, targets []pulse.Target) (int, error) {
	var out struct {
		Added int `json:"added"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionQueueTargets, Kind: kind, Targets: targets}, &out)
	return out.Added, err
}

func (c *Client) Backlog(ctx context.Context, kind pulse.Kind) ([]pulse.Target, error) {
	var out struct {
		Targets []pulse.Target `json:"targets"`
	}
	err := c.Do(ctx, server.Command{Action: server.ActionGetBacklog, Kind: kind}, &out)
	return out.Targets, err
}

func (c *Client) QuotaStatus(ctx context.Context) (*quota.Status, error) {
	var out quota.Status
	if err := c.Do(ctx, server.Command{Action: server.ActionGetQuotaStatus}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
