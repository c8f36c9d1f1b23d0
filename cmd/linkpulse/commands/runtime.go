package commands

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/am"
	"github.com/teranos/linkpulse/am/geotime"
	"github.com/teranos/linkpulse/db"
	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse/executor"
	"github.com/teranos/linkpulse/pulse/history"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/progress"
	"github.com/teranos/linkpulse/pulse/quota"
	"github.com/teranos/linkpulse/pulse/schedule"
	"github.com/teranos/linkpulse/server"
	"github.com/teranos/linkpulse/server/wslogs"
)

// executorRuntime is the wired executor process.
type executorRuntime struct {
	cfg      *am.Config
	database *sql.DB
	location *time.Location

	store     *kv.Store
	schedules *schedule.Store
	ticker    *schedule.Ticker
	jobs      *job.Coordinator
	guard     *quota.Guard
	limiter   *quota.Limiter
	ledger    *history.Ledger
	reporter  *progress.Reporter
	server    *server.Server

	logger *zap.SugaredLogger
}

// buildRuntime opens storage and wires every component from cfg.
// database may be nil, in which case database.path is opened and migrated.
func buildRuntime(cfg *am.Config, database *sql.DB, transport *wslogs.Transport) (*executorRuntime, error) {
	log := logger.ComponentLogger("serve")

	loc, err := geotime.Resolve(cfg.Pulse.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "resolve pulse.timezone")
	}
	now := func() time.Time { return time.Now().In(loc) }

	if database == nil {
		database, err = db.OpenWithMigrations(cfg.GetDatabasePath(), logger.ComponentLogger("db"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
	}

	rt := &executorRuntime{cfg: cfg, database: database, location: loc, logger: log}
	rt.store = kv.NewStore(database)
	rt.limiter = quota.NewLimiter(cfg.Automation.MaxActionsPerHour)
	rt.guard = quota.NewGuard(rt.store, cfg.QuotaPlan(),
		quota.WithClock(now),
		quota.WithHourlyLimiter(rt.limiter),
		quota.WithLogger(logger.ComponentLogger("pulse.quota")))
	rt.ledger = history.NewLedger(rt.store, cfg.History.ItemCap, cfg.History.SessionCap)
	rt.reporter = progress.NewReporter(rt.store)

	exec, source, err := newExecutor(cfg)
	if err != nil {
		return nil, err
	}

	rt.jobs = job.NewCoordinator(job.Deps{
		Store:    rt.store,
		Guard:    rt.guard,
		Ledger:   rt.ledger,
		Reporter: rt.reporter,
		Executor: exec,
		Source:   source,
	}, cfg.JobConfig(), logger.ComponentLogger("pulse.job"))
	rt.jobs.SetClock(now)
	if err := rt.jobs.Recover(); err != nil {
		log.Warnw("Job recovery incomplete", logger.FieldError, err.Error())
	}

	rt.schedules = schedule.NewStore(rt.store)
	rt.schedules.SetClock(now)
	rt.ticker = schedule.NewTicker(rt.schedules, rt.jobs, cfg.TickerConfig(), logger.ComponentLogger("pulse.schedule"))
	rt.ticker.SetClock(now)

	rt.server, err = server.New(server.Deps{
		Store:        rt.store,
		Schedules:    rt.schedules,
		Ticker:       rt.ticker,
		Jobs:         rt.jobs,
		Guard:        rt.guard,
		Ledger:       rt.ledger,
		Progress:     rt.reporter,
		LogTransport: transport,
	}, serverOptions(cfg), logger.ComponentLogger("server"))
	if err != nil {
		return nil, err
	}
	rt.server.SetClock(now)
	return rt, nil
}

func serverOptions(cfg *am.Config) server.Options {
	return server.Options{
		AllowedOrigins:   cfg.GetServerAllowedOrigins(),
		MinClientVersion: cfg.Server.MinClientVersion,
	}
}

// newExecutor picks the action executor for executor.mode.
func newExecutor(cfg *am.Config) (job.Executor, job.TargetSource, error) {
	log := logger.ComponentLogger("pulse.executor")
	switch cfg.Executor.Mode {
	case am.ExecutorRemote:
		remote, err := executor.NewRemote(executor.RemoteConfig{
			URL:     cfg.Executor.URL,
			Timeout: time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
			Token:   cfg.Executor.Token,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := remote.Ping(ctx); err != nil {
			// runs fail with communication errors until the agent is up
			log.Warnw("Action agent not reachable yet", "url", cfg.Executor.URL, logger.FieldError, err.Error())
		}
		return remote, remote, nil
	case am.ExecutorSimulated, "":
		sim := executor.NewSimulated(executor.SimulatedConfig{
			Latency: time.Duration(cfg.Executor.SimulatedLatencyMS) * time.Millisecond,
		}, log)
		return sim, sim, nil
	default:
		return nil, nil, errors.NewValidationError("unknown executor mode %q", cfg.Executor.Mode)
	}
}

// applyConfig pushes hot-reloadable settings into the running components.
// Storage, port, timezone, ticker and executor changes need a restart.
func (rt *executorRuntime) applyConfig(cfg *am.Config) error {
	rt.guard.SetPlan(cfg.QuotaPlan())
	rt.jobs.SetConfig(cfg.JobConfig())
	rt.limiter.SetMax(cfg.Automation.MaxActionsPerHour)
	rt.server.SetOptions(serverOptions(cfg))

	prev := rt.cfg
	if prev.GetDatabasePath() != cfg.GetDatabasePath() ||
		prev.GetServerPort() != cfg.GetServerPort() ||
		prev.Pulse != cfg.Pulse ||
		prev.Executor != cfg.Executor {
		rt.logger.Warnw("Some changed settings take effect after restart",
			"sections", "database, server.port, pulse, executor")
	}
	rt.cfg = cfg
	rt.logger.Infow("Configuration reloaded")
	return nil
}

// Close releases storage.
func (rt *executorRuntime) Close() error {
	return rt.database.Close()
}
