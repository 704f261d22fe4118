package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("record already exists")
	ErrActiveSessionExists = errors.New("user already has an active session")
	ErrUnavailable         = errors.New("store unavailable")
)
