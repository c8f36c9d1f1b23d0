package am

import (
	"net/url"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/linkpulse/am/geotime"
	"github.com/teranos/linkpulse/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return errors.NewValidationError("server.allowed_origins cannot contain empty entries")
		}
	}
	if c.Server.MinClientVersion != "" {
		if _, err := semver.NewVersion(c.Server.MinClientVersion); err != nil {
			return errors.NewValidationError("server.min_client_version %q is not a semantic version", c.Server.MinClientVersion)
		}
	}

	// 0 = default interval
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.NewValidationError("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.Timezone != "" {
		if err := geotime.ValidateTimezone(c.Pulse.Timezone); err != nil {
			return errors.NewValidationError("pulse.timezone: %v", err)
		}
	}

	for name, n := range c.Automation.ItemsPerRun {
		if _, ok := kindByName(name); !ok {
			return errors.NewValidationError("automation.items_per_run: unknown automation kind %q", name)
		}
		if n <= 0 {
			return errors.NewValidationError("automation.items_per_run.%s must be > 0, got %d", name, n)
		}
	}
	if c.Automation.ActionDelayMS < 0 {
		return errors.NewValidationError("automation.action_delay_ms must be >= 0, got %d", c.Automation.ActionDelayMS)
	}
	if c.Automation.MaxActionsPerHour < 0 {
		return errors.NewValidationError("automation.max_actions_per_hour must be >= 0, got %d", c.Automation.MaxActionsPerHour)
	}

	for _, name := range c.Plan.Automations {
		if _, ok := kindByName(name); !ok {
			return errors.NewValidationError("plan.automations: unknown automation kind %q", name)
		}
	}
	// Zero means zero: a limit of 0 disables the action, negative is invalid
	daily := map[string]int{
		"comments":    c.Plan.Daily.Comments,
		"likes":       c.Plan.Daily.Likes,
		"shares":      c.Plan.Daily.Shares,
		"follows":     c.Plan.Daily.Follows,
		"connections": c.Plan.Daily.Connections,
	}
	for _, name := range sortedKeys(daily) {
		if daily[name] < 0 {
			return errors.NewValidationError("plan.daily.%s must be >= 0, got %d", name, daily[name])
		}
	}
	if c.Plan.Monthly.ImportCredits < 0 {
		return errors.NewValidationError("plan.monthly.import_credits must be >= 0, got %d", c.Plan.Monthly.ImportCredits)
	}
	if c.Plan.Monthly.AICredits < 0 {
		return errors.NewValidationError("plan.monthly.ai_credits must be >= 0, got %d", c.Plan.Monthly.AICredits)
	}

	if c.History.ItemCap <= 0 {
		return errors.NewValidationError("history.item_cap must be > 0, got %d", c.History.ItemCap)
	}
	if c.History.SessionCap <= 0 {
		return errors.NewValidationError("history.session_cap must be > 0, got %d", c.History.SessionCap)
	}

	switch c.Executor.Mode {
	case ExecutorSimulated:
	case ExecutorRemote:
		u, err := url.Parse(c.Executor.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.NewValidationError("executor.url %q must be an http(s) URL when executor.mode is remote", c.Executor.URL)
		}
	default:
		return errors.NewValidationError("executor.mode must be %q or %q, got %q", ExecutorRemote, ExecutorSimulated, c.Executor.Mode)
	}
	if c.Executor.TimeoutSeconds <= 0 {
		return errors.NewValidationError("executor.timeout_seconds must be > 0, got %d", c.Executor.TimeoutSeconds)
	}
	if c.Executor.SimulatedLatencyMS < 0 {
		return errors.NewValidationError("executor.simulated_latency_ms must be >= 0, got %d", c.Executor.SimulatedLatencyMS)
	}
	return nil
}

// ValidateFile strictly decodes a single config file and validates it on top of
// the defaults. Keys the Config struct does not know are returned as warnings.
func ValidateFile(path string) ([]string, error) {
	var probe Config
	md, err := toml.DecodeFile(path, &probe)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	sort.Strings(unknown)

	if _, err := LoadFromFile(path); err != nil {
		return unknown, err
	}
	return unknown, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
