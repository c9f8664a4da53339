package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	initLogger()
	core, logs := observer.New(atomLevel)
	mu.Lock()
	old := logger
	logger = zap.New(core).Sugar()
	mu.Unlock()
	prev := atomLevel.Level()
	t.Cleanup(func() {
		mu.Lock()
		logger = old
		mu.Unlock()
		atomLevel.SetLevel(prev)
	})
	return logs
}

func TestErrorPrependsErr(t *testing.T) {
	logs := observe(t)
	SetLevel(LevelInfo)

	Error("fetch failed", errors.New("boom"), "meeting_id", 42)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fetch failed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["err"])
	assert.EqualValues(t, 42, ctx["meeting_id"])
}

func TestSetLevelFilters(t *testing.T) {
	logs := observe(t)

	SetLevel(LevelError)
	Info("hidden")
	Debug("hidden")
	Error("shown", nil)
	assert.Equal(t, 1, logs.Len())

	SetLevel(LevelDebug)
	Debug("now visible")
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
}

func TestInit(t *testing.T) {
	prev := atomLevel.Level()
	t.Cleanup(func() { atomLevel.SetLevel(prev) })

	require.NoError(t, Init("debug", "json"))
	assert.Equal(t, zapcore.DebugLevel, atomLevel.Level())

	require.NoError(t, Init("loud", "console"))
	assert.Equal(t, zapcore.InfoLevel, atomLevel.Level())
}
