// Package am loads and validates linkpulse configuration.
//
// Files are merged in precedence order system < user < project, then
// LINKPULSE_* environment variables override individual keys.
package am

// Config represents the linkpulse configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Pulse      PulseConfig      `mapstructure:"pulse" toml:"pulse"`
	Automation AutomationConfig `mapstructure:"automation" toml:"automation"`
	Plan       PlanConfig       `mapstructure:"plan" toml:"plan"`
	History    HistoryConfig    `mapstructure:"history" toml:"history"`
	Executor   ExecutorConfig   `mapstructure:"executor" toml:"executor"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the command channel server
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	// MinClientVersion rejects UI clients that send an older X-Client-Version. Empty accepts all.
	MinClientVersion string `mapstructure:"min_client_version" toml:"min_client_version"`
}

// PulseConfig configures the schedule ticker
type PulseConfig struct {
	TickerIntervalSeconds int  `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds"`
	CatchUpMissed         bool `mapstructure:"catch_up_missed" toml:"catch_up_missed"`
	// Timezone for schedule times and quota date keys. Empty uses the host zone.
	Timezone string `mapstructure:"timezone" toml:"timezone"`
}

// AutomationConfig tunes job runs
type AutomationConfig struct {
	// ItemsPerRun caps scheduled runs, keyed by kind (case-insensitive).
	ItemsPerRun       map[string]int `mapstructure:"items_per_run" toml:"items_per_run"`
	ActionDelayMS     int            `mapstructure:"action_delay_ms" toml:"action_delay_ms"`
	MaxActionsPerHour int            `mapstructure:"max_actions_per_hour" toml:"max_actions_per_hour"` // 0 = no ceiling
}

// PlanConfig holds the active plan's permissions and limits
type PlanConfig struct {
	Automations []string      `mapstructure:"automations" toml:"automations"`
	Daily       DailyLimits   `mapstructure:"daily" toml:"daily"`
	Monthly     MonthlyLimits `mapstructure:"monthly" toml:"monthly"`
}

// DailyLimits are per-action daily counters. Zero allows none of that action.
type DailyLimits struct {
	Comments    int `mapstructure:"comments" toml:"comments"`
	Likes       int `mapstructure:"likes" toml:"likes"`
	Shares      int `mapstructure:"shares" toml:"shares"`
	Follows     int `mapstructure:"follows" toml:"follows"`
	Connections int `mapstructure:"connections" toml:"connections"`
}

// MonthlyLimits are credit allowances granted each month
type MonthlyLimits struct {
	ImportCredits int `mapstructure:"import_credits" toml:"import_credits"`
	AICredits     int `mapstructure:"ai_credits" toml:"ai_credits"`
}

// HistoryConfig bounds the history ledger
type HistoryConfig struct {
	ItemCap    int `mapstructure:"item_cap" toml:"item_cap"`
	SessionCap int `mapstructure:"session_cap" toml:"session_cap"`
}

// ExecutorConfig selects and locates the action executor
type ExecutorConfig struct {
	Mode               string `mapstructure:"mode" toml:"mode"` // remote or simulated
	URL                string `mapstructure:"url" toml:"url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	Token              string `mapstructure:"token" toml:"token,omitempty"`
	SimulatedLatencyMS int    `mapstructure:"simulated_latency_ms" toml:"simulated_latency_ms"`
}

// Executor modes
const (
	ExecutorRemote    = "remote"
	ExecutorSimulated = "simulated"
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
