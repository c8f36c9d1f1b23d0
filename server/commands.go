package server

import (
	"context"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/pulse/schedule"
)

// Command actions.
const (
	ActionAddSchedule           = "addSchedule"
	ActionRemoveSchedule        = "removeSchedule"
	ActionSetSchedulerEnabled   = "setSchedulerEnabled"
	ActionGetSchedulerStatus    = "getSchedulerStatus"
	ActionGetSchedulerCountdown = "getSchedulerCountdown"
	ActionStartJob              = "startJob"
	ActionStopJob               = "stopJob"
	ActionGetJobProgress        = "getJobProgress"
	ActionGetJobState           = "getJobState"
	ActionGetJobSummary         = "getJobSummary"
	ActionGetHistory            = "getHistory"
	ActionClearHistory          = "clearHistory"
	ActionExportHistory         = "exportHistory"
	ActionQueueTargets          = "queueTargets"
	ActionGetBacklog            = "getBacklog"
	ActionGetQuotaStatus        = "getQuotaStatus"
)

// data is the payload flattened into a successful Response.
type data = map[string]interface{}

type commandFunc func(ctx context.Context, cmd Command) (data, error)

func (s *Server) commandTable() map[string]commandFunc {
	return map[string]commandFunc{
		ActionAddSchedule:           s.addSchedule,
		ActionRemoveSchedule:        s.removeSchedule,
		ActionSetSchedulerEnabled:   s.setSchedulerEnabled,
		ActionGetSchedulerStatus:    s.getSchedulerStatus,
		ActionGetSchedulerCountdown: s.getSchedulerCountdown,
		ActionStartJob:              s.startJob,
		ActionStopJob:               s.stopJob,
		ActionGetJobProgress:        s.getJobProgress,
		ActionGetJobState:           s.getJobState,
		ActionGetJobSummary:         s.getJobSummary,
		ActionGetHistory:            s.getHistory,
		ActionClearHistory:          s.clearHistory,
		ActionExportHistory:         s.exportHistory,
		ActionQueueTargets:          s.queueTargets,
		ActionGetBacklog:            s.getBacklog,
		ActionGetQuotaStatus:        s.getQuotaStatus,
	}
}

// Execute runs one command and wraps the result in the response envelope.
// Commands are refused once the server is draining.
func (s *Server) Execute(ctx context.Context, cmd Command) Response {
	if s.State() != ServerStateRunning {
		return errorResponse(errors.WrapCommunication(
			errors.Newf("server is %s", s.State()), "execute "+cmd.Action))
	}
	fn, ok := s.commands[cmd.Action]
	if !ok {
		return errorResponse(errors.NewValidationError("unknown action %q", cmd.Action))
	}

	out, err := fn(ctx, cmd)
	if err != nil {
		log := s.logger.Infow
		if errors.Code(err) == errors.CodeInternal || errors.IsFatal(err) {
			log = s.logger.Errorw
		}
		log("Command rejected",
			logger.FieldAction, cmd.Action,
			logger.FieldKind, cmd.Kind,
			logger.FieldErrorCode, errors.Code(err),
			logger.FieldError, err.Error())
		return errorResponse(err)
	}
	return Response{Success: true, Data: out}
}

func errorResponse(err error) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Code:    errors.Code(err),
		Hints:   errors.GetAllHints(err),
	}
}

func commandKind(cmd Command) (pulse.Kind, error) {
	if cmd.Kind == "" {
		return "", errors.NewValidationError("%s requires a kind", cmd.Action)
	}
	return pulse.ParseKind(string(cmd.Kind))
}

func (s *Server) addSchedule(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Time == "" {
		return nil, errors.NewValidationError("addSchedule requires a time (HH:MM)")
	}
	entry, err := s.deps.Schedules.Add(kind, cmd.Time, cmd.Options)
	if err != nil {
		return nil, err
	}
	return data{"schedule": entry}, nil
}

func (s *Server) removeSchedule(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	ref := cmd.ID
	if ref == "" {
		ref = cmd.Time
	}
	if ref == "" {
		return nil, errors.NewValidationError("removeSchedule requires an id or a time")
	}
	removed, err := s.deps.Schedules.Remove(kind, ref)
	if err != nil {
		return nil, err
	}
	return data{"removed": removed}, nil
}

func (s *Server) setSchedulerEnabled(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Enabled == nil {
		return nil, errors.NewValidationError("setSchedulerEnabled requires enabled")
	}
	if err := s.deps.Schedules.SetEnabled(kind, *cmd.Enabled); err != nil {
		return nil, err
	}
	return data{"enabled": *cmd.Enabled}, nil
}

func (s *Server) getSchedulerStatus(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	st, err := s.deps.Schedules.Status(kind, s.now())
	if err != nil {
		return nil, err
	}
	schedules := st.Schedules
	if schedules == nil {
		schedules = []schedule.Entry{}
	}
	return data{
		"enabled":       st.Enabled,
		"schedules":     schedules,
		"nextExecution": st.NextExecution,
		"countdown":     st.Countdown,
	}, nil
}

func (s *Server) getSchedulerCountdown(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	var cd schedule.Countdown
	if s.deps.Ticker != nil {
		cd, err = s.deps.Ticker.Countdown(kind, s.now())
	} else {
		var st *schedule.Status
		st, err = s.deps.Schedules.Status(kind, s.now())
		if st != nil {
			cd = schedule.Countdown{Kind: kind, Enabled: st.Enabled, Remaining: st.Countdown}
		}
	}
	if err != nil {
		return nil, err
	}
	return data{"countdown": cd.Remaining, "enabled": cd.Enabled, "next": cd.Next}, nil
}

func (s *Server) startJob(ctx context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	state, err := s.deps.Jobs.Start(ctx, job.StartRequest{
		Kind:    kind,
		Targets: cmd.Targets,
		Options: cmd.Options,
		Trigger: job.TriggerManual,
	})
	if err != nil {
		return nil, err
	}
	return data{"job": state}, nil
}

func (s *Server) stopJob(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	state, err := s.deps.Jobs.Stop(kind)
	if err != nil {
		return nil, err
	}
	return data{"job": state}, nil
}

func (s *Server) getJobProgress(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	snap, err := s.deps.Progress.Get(kind)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return data{"running": false, "current": 0, "total": 0}, nil
	}
	return data{
		"running":     true,
		"runId":       snap.RunID,
		"current":     snap.Current,
		"total":       snap.Total,
		"lastUpdated": snap.LastUpdated,
	}, nil
}

func (s *Server) getJobState(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	state, err := s.deps.Jobs.State(kind)
	if err != nil {
		return nil, err
	}
	return data{"job": state}, nil
}

func (s *Server) getJobSummary(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	session, err := s.deps.Ledger.LastSession(kind)
	if err != nil {
		return nil, err
	}
	return data{"summary": session}, nil
}

func (s *Server) getHistory(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	var f history.Filter
	if cmd.Filter != nil {
		f = *cmd.Filter
	}
	if cmd.Limit > 0 {
		f.Limit = cmd.Limit
	}
	records, err := s.deps.Ledger.List(kind, f)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []history.Record{}
	}
	return data{"history": records}, nil
}

func (s *Server) clearHistory(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Ledger.Clear(kind); err != nil {
		return nil, err
	}
	return data{}, nil
}

func (s *Server) exportHistory(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Ledger.Export(kind)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []history.Row{}
	}
	return data{"header": history.RowHeader, "rows": rows}, nil
}

func (s *Server) queueTargets(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	if len(cmd.Targets) == 0 {
		return nil, errors.NewValidationError("queueTargets requires at least one target")
	}
	added, err := s.deps.Jobs.Backlog().Push(kind, cmd.Targets)
	if err != nil {
		return nil, err
	}
	return data{"added": added}, nil
}

func (s *Server) getBacklog(_ context.Context, cmd Command) (data, error) {
	kind, err := commandKind(cmd)
	if err != nil {
		return nil, err
	}
	targets, err := s.deps.Jobs.Backlog().List(kind)
	if err != nil {
		return nil, err
	}
	if targets == nil {
		targets = []pulse.Target{}
	}
	return data{"size": len(targets), "targets": targets}, nil
}

func (s *Server) getQuotaStatus(_ context.Context, _ Command) (data, error) {
	st, err := s.deps.Guard.Status()
	if err != nil {
		return nil, err
	}
	return data{
		"userId":          st.UserID,
		"dateKey":         st.DateKey,
		"daily":           st.Daily,
		"limits":          st.Limits,
		"remaining":       st.Remaining,
		"yearMonthKey":    st.YearMonthKey,
		"monthly":         st.Monthly,
		"allowance":       st.Allowance,
		"hourlyUsed":      st.HourlyUsed,
		"hourlyRemaining": st.HourlyRemaining,
	}, nil
}
