package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/drivescore/internal/adapters/repository"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrBodyTooBig  = errors.New("request body too large")
	ErrUnsupported = errors.New("unsupported media type")
)

// Error codes carried in the response envelope.
const (
	codeBadRequest         = "bad_request"
	codeInvalidParameter   = "invalid_parameter"
	codeInvalidSession     = "invalid_session"
	codeSessionNotFound    = "session_not_found"
	codeEvaluationNotFound = "evaluation_not_found"
	codeInvalidState       = "invalid_state"
	codeUnavailable        = "unavailable"
	codeTimeout            = "timeout"
	codeInternal           = "internal"
)

// KindError annotates an error with the operation that produced it while
// keeping both the kind and the cause reachable through errors.Is.
type KindError struct {
	Op    string
	Kind  error
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

func (e *KindError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// WrapKind tags cause with op and kind.
func WrapKind(op string, kind, cause error) error {
	return &KindError{Op: op, Kind: kind, Cause: cause}
}

// NewKind reports kind for op without an underlying cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// classify maps an error onto an HTTP status and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooBig):
		return http.StatusRequestEntityTooLarge, codeBadRequest
	case errors.Is(err, ErrUnsupported):
		return http.StatusUnsupportedMediaType, codeBadRequest
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, model.ErrInvalidParameter):
		return http.StatusBadRequest, codeInvalidParameter
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, codeSessionNotFound
	case errors.Is(err, model.ErrEvaluationNotFound):
		return http.StatusNotFound, codeEvaluationNotFound
	case errors.Is(err, model.ErrInvalidSession):
		return http.StatusConflict, codeInvalidSession
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable
	case errors.Is(err, model.ErrStorageFailure):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
