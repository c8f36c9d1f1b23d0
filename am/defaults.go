package am

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/pulse/quota"
	"github.com/teranos/linkpulse/pulse/schedule"
)

// Server port constants
const (
	DefaultServerPort  = 7787
	FallbackServerPort = 7788
)

// EnvPrefix prefixes every environment override (LINKPULSE_SERVER_PORT, ...).
const EnvPrefix = "LINKPULSE"

// DefaultAllowedOrigins accepts the local UI and the browser extension.
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"chrome-extension://",
}

// Default returns the built-in configuration. It is what `am init` writes.
func Default() *Config {
	plan := quota.DefaultPlan()
	automations := make([]string, len(plan.Automations))
	for i, k := range plan.Automations {
		automations[i] = string(k)
	}
	return &Config{
		Database: DatabaseConfig{Path: "linkpulse.db"},
		Server: ServerConfig{
			Port:           DefaultServerPort,
			AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		},
		Pulse: PulseConfig{TickerIntervalSeconds: 1, CatchUpMissed: true},
		Automation: AutomationConfig{
			ItemsPerRun: map[string]int{
				string(pulse.KindBulkEngagement): job.DefaultItemsPerRun,
				string(pulse.KindPeopleSearch):   job.DefaultItemsPerRun,
				string(pulse.KindProfileImport):  job.DefaultItemsPerRun,
			},
			ActionDelayMS:     3000,
			MaxActionsPerHour: 60,
		},
		Plan: PlanConfig{
			Automations: automations,
			Daily: DailyLimits{
				Comments:    plan.Daily.Comments,
				Likes:       plan.Daily.Likes,
				Shares:      plan.Daily.Shares,
				Follows:     plan.Daily.Follows,
				Connections: plan.Daily.Connections,
			},
			Monthly: MonthlyLimits{ImportCredits: plan.Monthly.Import, AICredits: plan.Monthly.AI},
		},
		History:  HistoryConfig{ItemCap: 200, SessionCap: 50},
		Executor: ExecutorConfig{Mode: ExecutorSimulated, URL: "http://127.0.0.1:7790", TimeoutSeconds: 90},
	}
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.min_client_version", "")

	v.SetDefault("pulse.ticker_interval_seconds", d.Pulse.TickerIntervalSeconds)
	v.SetDefault("pulse.catch_up_missed", d.Pulse.CatchUpMissed)
	v.SetDefault("pulse.timezone", "")

	for kind, n := range d.Automation.ItemsPerRun {
		v.SetDefault("automation.items_per_run."+strings.ToLower(kind), n)
	}
	v.SetDefault("automation.action_delay_ms", d.Automation.ActionDelayMS)
	v.SetDefault("automation.max_actions_per_hour", d.Automation.MaxActionsPerHour)

	v.SetDefault("plan.automations", d.Plan.Automations)
	v.SetDefault("plan.daily.comments", d.Plan.Daily.Comments)
	v.SetDefault("plan.daily.likes", d.Plan.Daily.Likes)
	v.SetDefault("plan.daily.shares", d.Plan.Daily.Shares)
	v.SetDefault("plan.daily.follows", d.Plan.Daily.Follows)
	v.SetDefault("plan.daily.connections", d.Plan.Daily.Connections)
	v.SetDefault("plan.monthly.import_credits", d.Plan.Monthly.ImportCredits)
	v.SetDefault("plan.monthly.ai_credits", d.Plan.Monthly.AICredits)

	v.SetDefault("history.item_cap", d.History.ItemCap)
	v.SetDefault("history.session_cap", d.History.SessionCap)

	v.SetDefault("executor.mode", d.Executor.Mode)
	v.SetDefault("executor.url", d.Executor.URL)
	v.SetDefault("executor.timeout_seconds", d.Executor.TimeoutSeconds)
	v.SetDefault("executor.simulated_latency_ms", 0)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("executor.token", EnvPrefix+"_EXECUTOR_TOKEN")
	_ = v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH")
}

// QuotaPlan converts the plan section. Unknown kinds are skipped; Validate reports them.
func (c *Config) QuotaPlan() quota.Plan {
	p := quota.Plan{
		Daily: pulse.Metrics{
			Likes:       c.Plan.Daily.Likes,
			Comments:    c.Plan.Daily.Comments,
			Shares:      c.Plan.Daily.Shares,
			Follows:     c.Plan.Daily.Follows,
			Connections: c.Plan.Daily.Connections,
		},
		Monthly: pulse.Credits{Import: c.Plan.Monthly.ImportCredits, AI: c.Plan.Monthly.AICredits},
	}
	for _, name := range c.Plan.Automations {
		if k, ok := kindByName(name); ok {
			p.Automations = append(p.Automations, k)
		}
	}
	return p
}

// JobConfig converts the automation section.
func (c *Config) JobConfig() job.Config {
	cfg := job.Config{
		ItemsPerRun: make(map[pulse.Kind]int),
		ActionDelay: time.Duration(c.Automation.ActionDelayMS) * time.Millisecond,
	}
	for name, n := range c.Automation.ItemsPerRun {
		if k, ok := kindByName(name); ok {
			cfg.ItemsPerRun[k] = n
		}
	}
	return cfg
}

// TickerConfig converts the pulse section.
func (c *Config) TickerConfig() schedule.TickerConfig {
	interval := time.Duration(c.Pulse.TickerIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = schedule.DefaultTickerConfig().Interval
	}
	return schedule.TickerConfig{Interval: interval, CatchUpMissed: c.Pulse.CatchUpMissed}
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "linkpulse.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port or the default
func (c *Config) GetServerPort() int {
	if c.Server.Port <= 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetServerAllowedOrigins returns the allowed origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return DefaultAllowedOrigins
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Executor: {Mode: %s}}",
		c.Database.Path, c.Server.Port, c.Executor.Mode)
}

// kindByName matches case-insensitively: viper lowercases map keys.
func kindByName(name string) (pulse.Kind, bool) {
	for _, k := range pulse.Kinds {
		if strings.EqualFold(string(k), name) {
			return k, true
		}
	}
	return "", false
}
