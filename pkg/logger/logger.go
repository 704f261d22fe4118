// Package logger provides a small structured logging facade with slog and zap backends.
package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Constants for logging operations.
const (
	callerSkipFrames = 3 // getCaller -> log -> logging method -> actual caller
)

// Backend names accepted by InitWithBackend.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// Logger defines the logging interface.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field          { return Field{Key: key, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field     { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field       { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }
func Error(err error) Field                 { return Field{Key: "error", Value: err} }

// backend is what each implementation must provide; level filtering and
// caller annotation are shared.
type backend interface {
	Logger
	sync() error
}

var (
	mu      sync.RWMutex
	global  backend
	current = BackendSlog
)

// Init initializes the global logger with the slog backend.
func Init() error {
	return InitWithBackend(BackendSlog)
}

// InitWithBackend initializes the global logger with the named backend.
// An empty name selects slog.
func InitWithBackend(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	var b backend
	switch name {
	case "", BackendSlog:
		name = BackendSlog
		b = newSlogBackend()
	case BackendZap:
		zb, err := newZapBackend()
		if err != nil {
			return fmt.Errorf("init zap backend: %w", err)
		}
		b = zb
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	mu.Lock()
	global = b
	current = name
	mu.Unlock()
	return nil
}

// Get returns the global logger.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}

// Named creates a named logger.
func Named(name string) Logger {
	return Get().Named(name)
}

// CurrentBackend reports the backend selected by the last successful init.
func CurrentBackend() string {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	b := global
	mu.RUnlock()
	if b == nil {
		return nil
	}
	return b.sync()
}

// SetLevelString parses and sets the logging level on both backends.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	setLevel(lvl)
	return nil
}

// getCaller returns the caller location in format relative/path/file.go:line.
func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkipFrames)
	if !ok {
		return "unknown:0"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	relPath, err := filepath.Rel(cwd, file)
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return fmt.Sprintf("%s:%d", relPath, line)
}
