package model

import "errors"

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidState       = errors.New("invalid session state")
	ErrStorageFailure     = errors.New("storage failure")
	ErrEvaluationNotFound = errors.New("evaluation not found")
)
