package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the backend-neutral severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	slogLevel slog.LevelVar
	zapLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func parseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrUnknownLevel, level)
	}
}

func setLevel(l Level) {
	switch l {
	case LevelDebug:
		slogLevel.Set(slog.LevelDebug)
		zapLevel.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		slogLevel.Set(slog.LevelWarn)
		zapLevel.SetLevel(zapcore.WarnLevel)
	case LevelError:
		slogLevel.Set(slog.LevelError)
		zapLevel.SetLevel(zapcore.ErrorLevel)
	default:
		slogLevel.Set(slog.LevelInfo)
		zapLevel.SetLevel(zapcore.InfoLevel)
	}
}
