package logger

import (
	"context"
	"errors"
	"syscall"

	"go.uber.org/zap"
)

// zapLogger implements Logger on top of a zap.Logger.
type zapLogger struct {
	logger *zap.Logger
}

func newZapBackend() (*zapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{logger: l}, nil
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{logger: l.logger.Named(name)}
}

func (l *zapLogger) Info(_ context.Context, msg string, fields ...Field) {
	if ce := l.logger.Check(zap.InfoLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (l *zapLogger) Error(_ context.Context, msg string, fields ...Field) {
	if ce := l.logger.Check(zap.ErrorLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (l *zapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	if ce := l.logger.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (l *zapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	if ce := l.logger.Check(zap.WarnLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (l *zapLogger) Fatal(_ context.Context, msg string, fields ...Field) {
	l.logger.Fatal(msg, toZap(fields)...)
}

func (l *zapLogger) sync() error {
	err := l.logger.Sync()
	// stdout/stderr cannot be fsynced on most terminals.
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Zap returns the underlying zap logger when the zap backend is active.
func Zap() (*zap.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if zl, ok := global.(*zapLogger); ok {
		return zl.logger, true
	}
	return nil, false
}
