package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap-backed Logger. Any env other than "prod" selects the
// development encoder with coloured levels; prod writes JSON.
func New(env, level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if env != "prod" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{base: z}, nil
}

// NewWithCore wraps an existing zap core, e.g. an observer in tests.
func NewWithCore(core zapcore.Core) Logger {
	return &zapLogger{base: zap.New(core)}
}

type zapLogger struct {
	base *zap.Logger
}

func (l *zapLogger) Debug(f map[string]any, msg string) { l.base.Debug(msg, toFields(f)...) }
func (l *zapLogger) Info(f map[string]any, msg string)  { l.base.Info(msg, toFields(f)...) }
func (l *zapLogger) Warn(f map[string]any, msg string)  { l.base.Warn(msg, toFields(f)...) }
func (l *zapLogger) Error(f map[string]any, msg string) { l.base.Error(msg, toFields(f)...) }
func (l *zapLogger) Panic(f map[string]any, msg string) { l.base.Panic(msg, toFields(f)...) }
func (l *zapLogger) Fatal(f map[string]any, msg string) { l.base.Fatal(msg, toFields(f)...) }

func (l *zapLogger) With(f map[string]any) Logger {
	return &zapLogger{base: l.base.With(toFields(f)...)}
}

func (l *zapLogger) Sync() error { return l.base.Sync() }

func toFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		if err, ok := v.(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}
