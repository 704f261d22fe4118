package logger

import "errors"

// Sentinel kinds for logger configuration errors.
var (
	ErrUnknownBackend = errors.New("unknown log backend")
	ErrUnknownLevel   = errors.New("unknown log level")
)
