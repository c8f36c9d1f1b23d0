package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Logger
			defer func() { Logger = prev }()

			require.NoError(t, Initialize(tt.jsonOutput))
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithRequestID(ctx, "req-9")
	ctx = WithComponent(ctx, "pulse.job")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldRunID, "run-1",
		FieldRequestID, "req-9",
		FieldComponent, "pulse.job",
	}, fields)

	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestAddPulseSymbol(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	AddPulseSymbol(base).Infow("Ticker started", FieldKind, "peopleSearch")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "꩜", ctx[FieldSymbol])
	assert.Equal(t, "peopleSearch", ctx[FieldKind])
}

func TestSymbolWrappers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	AddPulseOpenSymbol(base).Warnw("Recovering interrupted job")
	AddPulseCloseSymbol(base).Infow("All runs finalized")
	AddDBSymbol(base).Infow("Migrations complete")

	var got []interface{}
	for _, e := range logs.All() {
		got = append(got, e.ContextMap()[FieldSymbol])
	}
	assert.Equal(t, []interface{}{"✿", "❀", "⊔"}, got)
}

func TestPackageHelpersWithNilLogger(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	Logger = nil
	Infow("test", "key", "value")
	Warnw("test", "key", "value")
	Errorw("test", "key", "value")
	Debugw("test", "key", "value")
}
