// Package log is the structured logging facade used across rr-filter.
// Components receive a Logger through their options and tag it with
// Component; the package-level functions write to a process-wide logger
// that the daemon configures once at startup.
package log

import "sync/atomic"

// Logger is the logging interface every component depends on. Fields are
// attached to the entry; error values are rendered as strings.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
	// With returns a child that adds fields to every entry.
	With(fields map[string]any) Logger
	// Sync flushes buffered entries.
	Sync() error
}

type holder struct{ Logger }

var global atomic.Pointer[holder]

func init() {
	l, err := New("prod", "info")
	if err != nil {
		l = NewNoopLogger()
	}
	SetLogger(l)
}

// SetLogger replaces the process-wide logger.
func SetLogger(l Logger) {
	global.Store(&holder{l})
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	return global.Load().Logger
}

// Configure replaces the process-wide logger with one built by New.
func Configure(env, level string) error {
	l, err := New(env, level)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// Component tags l with the name of the emitting component.
func Component(l Logger, name string) Logger {
	if l == nil {
		l = NewNoopLogger()
	}
	return l.With(map[string]any{"component": name})
}

func Debug(fields map[string]any, msg string) { GetLogger().Debug(fields, msg) }
func Info(fields map[string]any, msg string)  { GetLogger().Info(fields, msg) }
func Warn(fields map[string]any, msg string)  { GetLogger().Warn(fields, msg) }
func Error(fields map[string]any, msg string) { GetLogger().Error(fields, msg) }
func Panic(fields map[string]any, msg string) { GetLogger().Panic(fields, msg) }
func Fatal(fields map[string]any, msg string) { GetLogger().Fatal(fields, msg) }

// Sync flushes the process-wide logger.
func Sync() error { return GetLogger().Sync() }

type noopLogger struct{}

func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Panic(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}
func (n noopLogger) With(map[string]any) Logger { return n }
func (noopLogger) Sync() error                  { return nil }

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }
