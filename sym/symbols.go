// Package sym defines canonical symbols for linkpulse log lines and CLI output.
// These symbols are stable across the command channel, CLI, and logs.
package sym

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduler ticks, job runs, quota checks
	PulseOpen  = "✿" // graceful startup with interrupted job recovery
	PulseClose = "❀" // graceful shutdown, in-flight item completes first
	DB         = "⊔" // durable store
	AM         = "≡" // configuration and plan limits
	SO         = "⟶" // command channel (request leads to action)
)

// Descriptions maps each symbol to a short human-readable explanation.
var Descriptions = map[string]string{
	Pulse:      "Scheduler ticks, job runs, quota checks",
	PulseOpen:  "Startup with interrupted job recovery",
	PulseClose: "Shutdown after the in-flight item completes",
	DB:         "Durable store",
	AM:         "Configuration and plan limits",
	SO:         "Command channel",
}

// All returns every symbol in display order.
func All() []string {
	return []string{Pulse, PulseOpen, PulseClose, DB, AM, SO}
}
