package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + progress, startup, ticker activity
	VerbosityDebug = 2 // -vv: + per-item detail, timing, storage
)

// VerbosityToLevel maps a -v flag count to a zap level.
// zap has nothing finer than debug, so every count from -vv up logs at DebugLevel.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
