// Package executor provides the ActionExecutor implementations the job
// coordinator drives: Remote talks to the action agent over HTTP, Simulated
// performs dry runs without touching LinkedIn.
package executor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/internal/httpclient"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
)

// DefaultTimeout bounds a single agent call. A profile import item can load several pages.
const DefaultTimeout = 90 * time.Second

// RemoteConfig locates the action agent.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	// Token is sent as X-Agent-Token when set.
	Token string
}

// Remote executes items by posting them to the action agent.
//
// Agent contract:
//
//	POST <url>/execute     pulse.Item                        -> {success, error, outcome}
//	POST <url>/candidates  {kind, options, limit}            -> {success, error, targets}
//	GET  <url>/health                                         -> 2xx when ready
type Remote struct {
	client  *httpclient.SaferClient
	baseURL string
	headers http.Header
	logger  *zap.SugaredLogger
}

type executeResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Outcome pulse.Outcome `json:"outcome"`
}

type candidatesRequest struct {
	Kind    pulse.Kind    `json:"kind"`
	Options pulse.Options `json:"options"`
	Limit   int           `json:"limit"`
}

type candidatesResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Targets []pulse.Target `json:"targets"`
}

// NewRemote creates a remote executor. The agent usually listens on loopback,
// so private addresses are allowed.
func NewRemote(cfg RemoteConfig, log *zap.SugaredLogger) (*Remote, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	allowPrivate := false
	client := httpclient.NewSaferClientWithOptions(cfg.Timeout, httpclient.SaferClientOptions{
		BlockPrivateIP: &allowPrivate,
	})
	return newRemote(client, cfg, log)
}

func newRemote(client *httpclient.SaferClient, cfg RemoteConfig, log *zap.SugaredLogger) (*Remote, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, errors.NewValidationError("executor url is required for remote mode")
	}
	if _, err := client.ValidateURL(base); err != nil {
		return nil, errors.Wrap(errors.NewValidationError("executor url %q is not usable", cfg.URL), err.Error())
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	headers := http.Header{}
	if cfg.Token != "" {
		headers.Set("X-Agent-Token", cfg.Token)
	}
	return &Remote{client: client, baseURL: base, headers: headers, logger: log}, nil
}

// Execute sends one item to the agent. Transport failures and 5xx responses
// are communication errors; a 4xx or an unsuccessful result fails the item only.
func (r *Remote) Execute(ctx context.Context, item pulse.Item) (pulse.Outcome, error) {
	var resp executeResponse
	if err := r.post(ctx, "/execute", item, &resp); err != nil {
		return pulse.Outcome{}, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return pulse.Outcome{}, errors.WrapItem(errors.New(msg), "execute "+item.Target.Key())
	}

	r.logger.Debugw("Agent item done",
		logger.FieldRunID, item.RunID,
		logger.FieldTarget, item.Target.Key(),
		"metrics", resp.Outcome.Metrics)
	return resp.Outcome, nil
}

// Candidates asks the agent to collect up to limit fresh targets for kind.
func (r *Remote) Candidates(ctx context.Context, kind pulse.Kind, opts pulse.Options, limit int) ([]pulse.Target, error) {
	var resp candidatesResponse
	if err := r.post(ctx, "/candidates", candidatesRequest{Kind: kind, Options: opts, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.WrapItem(errors.New(resp.Error), "collect candidates")
	}
	if len(resp.Targets) > limit {
		resp.Targets = resp.Targets[:limit]
	}
	return resp.Targets, nil
}

// Ping checks that the agent is reachable.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "build health request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return errors.WrapCommunication(err, "agent health check")
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.WrapCommunication(errors.Newf("agent health returned %d", resp.StatusCode), "agent health check")
	}
	return nil
}

func (r *Remote) post(ctx context.Context, path string, in, out interface{}) error {
	err := r.client.PostJSON(ctx, r.baseURL+path, r.headers, in, out)
	if err == nil {
		return nil
	}

	var status *httpclient.StatusError
	if errors.As(err, &status) && status.StatusCode < 500 {
		err = errors.WithDetailf(err, "status %d", status.StatusCode)
		return errors.WrapItem(err, "agent "+path)
	}
	err = errors.WithDetail(err, "agent: "+r.baseURL)
	return errors.WrapCommunication(err, "agent "+path)
}
