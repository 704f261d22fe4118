// Package repository defines the persistence contract for sessions, telemetry
// and evaluations, with an in-memory implementation and a circuit-breaking
// decorator.
package repository

import (
	"context"
	"time"

	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/types"
)

// Order is the timestamp ordering of a telemetry query.
type Order int

const (
	// Ascending returns the oldest sample first.
	Ascending Order = iota
	// Descending returns the newest sample first.
	Descending
)

// TelemetryQuery filters and pages a session's samples.
type TelemetryQuery struct {
	// Since keeps only samples strictly after it when non-zero.
	Since time.Time
	Order Order
	// Limit of zero means no limit.
	Limit  int
	Offset int
}

// SessionStore persists sessions.
type SessionStore interface {
	// InsertSession stores a new session. Returns ErrActiveSessionExists if s
	// is active and its user already has an active session.
	InsertSession(ctx context.Context, s model.Session) error
	// UpdateSession overwrites the mutable fields of an existing session.
	// Returns ErrNotFound if the session is unknown.
	UpdateSession(ctx context.Context, s model.Session) error
	// GetSession returns ErrNotFound if the session is unknown.
	GetSession(ctx context.Context, id string) (model.Session, error)
	// ActiveSession returns the user's active session or ErrNotFound.
	ActiveSession(ctx context.Context, userID string) (model.Session, error)
	// ListUserSessions returns a user's sessions newest first, each with its
	// evaluation headline when one exists.
	ListUserSessions(ctx context.Context, userID string, limit, offset int) ([]types.SessionSummary, error)
	// AggregateUser totals the user's sessions started at or after since,
	// together with their evaluations.
	AggregateUser(ctx context.Context, userID string, since time.Time) (model.UserAggregate, error)
}

// TelemetryStore persists telemetry samples.
type TelemetryStore interface {
	// InsertTelemetryBatch writes every sample or none of them.
	InsertTelemetryBatch(ctx context.Context, samples []model.TelemetrySample) error
	// QueryTelemetry returns the session's samples ordered by timestamp.
	QueryTelemetry(ctx context.Context, sessionID string, q TelemetryQuery) ([]model.TelemetrySample, error)
	// AggregateTelemetry summarizes every persisted sample of the session.
	AggregateTelemetry(ctx context.Context, sessionID string) (model.TelemetryAggregate, error)
}

// EvaluationStore persists evaluations.
type EvaluationStore interface {
	// UpsertEvaluation inserts or replaces the session's evaluation.
	UpsertEvaluation(ctx context.Context, e model.Evaluation) error
	// GetEvaluation returns ErrNotFound if the session was never evaluated.
	GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	SessionStore
	TelemetryStore
	EvaluationStore

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
