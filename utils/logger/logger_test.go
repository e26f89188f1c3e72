package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLogLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{input: "debug", want: zapcore.DebugLevel},
		{input: "dbg", want: zapcore.DebugLevel},
		{input: "DEBUG", want: zapcore.DebugLevel},
		{input: "info", want: zapcore.InfoLevel},
		{input: "information", want: zapcore.InfoLevel},
		{input: "warn", want: zapcore.WarnLevel},
		{input: "warning", want: zapcore.WarnLevel},
		{input: " Warn ", want: zapcore.WarnLevel},
		{input: "error", want: zapcore.ErrorLevel},
		{input: "err", want: zapcore.ErrorLevel},
		{input: "", want: zapcore.InfoLevel},
		{input: "bogus", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, getLogLevelFromString(tt.input))
		})
	}
}

func TestInitReplacesGlobalLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Init(&Config{Level: "debug", Env: "test", AppName: "stash-go"})
	})
	defer zap.ReplaceGlobals(zap.NewNop())

	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestLogHelpersWriteThroughGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := zap.ReplaceGlobals(zap.New(core))
	defer prev()

	LogInfo("plain message", zap.String("key", "value"))
	LogWarnf("formatted %d", 7)
	LogError("boom")

	entries := logs.All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "plain message", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "formatted 7", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestLogHelpersAreNoOpBeforeInit(t *testing.T) {
	prev := zap.ReplaceGlobals(zap.NewNop())
	defer prev()

	assert.NotPanics(t, func() {
		LogDebug("quiet")
		LogInfof("quiet %s", "too")
		Sync()
	})
}
