package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T, level zapcore.Level) (Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(level)
	return NewWithCore(core), logs
}

func TestZapLogger_Fields(t *testing.T) {
	l, logs := observed(t, zapcore.DebugLevel)

	l.Warn(map[string]any{"source": "nsfw.txt", "error": errors.New("no such file")}, "blocklist source skipped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "blocklist source skipped", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "nsfw.txt", ctx["source"])
	assert.Equal(t, "no such file", ctx["error"])
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	l, logs := observed(t, zapcore.InfoLevel)
	l.Debug(nil, "hidden")
	l.Info(nil, "shown")
	l.Error(nil, "also shown")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 0, logs.FilterMessage("hidden").Len())
}

func TestComponent(t *testing.T) {
	l, logs := observed(t, zapcore.DebugLevel)
	Component(l, "blocklog").Info(map[string]any{"path": "/tmp/x.log"}, "Block log opened")

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "blocklog", ctx["component"])
	assert.Equal(t, "/tmp/x.log", ctx["path"])

	assert.NotNil(t, Component(nil, "x"))
}

func TestZapLogger_Panic(t *testing.T) {
	l, _ := observed(t, zapcore.DebugLevel)
	assert.Panics(t, func() { l.Panic(nil, "boom") })
}

func TestGlobalLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	l, logs := observed(t, zapcore.DebugLevel)
	SetLogger(l)

	Debug(nil, "debug msg")
	Info(nil, "info msg")
	Warn(nil, "warn msg")
	Error(nil, "error msg")

	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Level.CapitalString()+":"+e.Message)
	}
	assert.Equal(t, []string{"DEBUG:debug msg", "INFO:info msg", "WARN:warn msg", "ERROR:error msg"}, msgs)
	assert.NoError(t, Sync())
}

func TestNew(t *testing.T) {
	for _, tc := range []struct{ env, level string }{
		{"dev", "debug"},
		{"prod", "info"},
		{"prod", "WARN"},
		{"dev", "error"},
	} {
		l, err := New(tc.env, tc.level)
		require.NoError(t, err, "%s/%s", tc.env, tc.level)
		assert.NotNil(t, l)
	}

	_, err := New("dev", "notalevel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	require.NoError(t, Configure("dev", "debug"))
	assert.NotSame(t, orig, GetLogger())

	before := GetLogger()
	require.Error(t, Configure("prod", "verbose"))
	assert.Same(t, before, GetLogger(), "failed Configure keeps the current logger")
}

func TestNoopLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	SetLogger(NewNoopLogger())

	assert.NotPanics(t, func() {
		Debug(nil, "d")
		Info(nil, "i")
		Warn(nil, "w")
		Error(nil, "e")
		Panic(nil, "p")
		Fatal(nil, "f")
	})
	assert.NotNil(t, GetLogger().With(map[string]any{"a": 1}))
	assert.NoError(t, Sync())
}
