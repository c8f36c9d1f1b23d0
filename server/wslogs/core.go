package wslogs

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/teranos/linkpulse/logger"
)

// WebSocketCore is a zap core that forwards run log lines to the Transport.
// Only entries carrying a run_id field (set by the job coordinator) are
// forwarded; everything else stays in the regular log outputs. Combine it with
// the base core using zapcore.NewTee.
type WebSocketCore struct {
	zapcore.LevelEnabler
	transport *Transport
	fields    []zapcore.Field
}

// NewWebSocketCore creates a core sending entries at level and above to transport
func NewWebSocketCore(level zapcore.LevelEnabler, transport *Transport) *WebSocketCore {
	return &WebSocketCore{LevelEnabler: level, transport: transport}
}

// With keeps context fields: the coordinator attaches run_id this way.
func (c *WebSocketCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &WebSocketCore{
		LevelEnabler: c.LevelEnabler,
		transport:    c.transport,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

// Check determines if the logger should log at this level (zap interface)
func (c *WebSocketCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

// Write forwards the entry when it belongs to a run and any client listens
func (c *WebSocketCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if !c.Enabled(entry.Level) || c.transport.ClientCount() == 0 {
		return nil
	}

	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	runID := ""
	for _, f := range all {
		if f.Key == logger.FieldRunID && f.Type == zapcore.StringType {
			runID = f.String
		}
	}
	if runID == "" {
		return nil
	}

	c.transport.SendBatch(&Batch{
		Messages:  []Message{FromZapEntry(entry, all)},
		RunID:     runID,
		Timestamp: time.Now(),
	})
	return nil
}

// Sync is a no-op: every entry is sent immediately
func (c *WebSocketCore) Sync() error {
	return nil
}
