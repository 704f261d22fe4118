package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/types"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

// Breaker defaults.
const (
	defaultBreakerName             = "store"
	defaultBreakerFailureThreshold = 5
	defaultBreakerTimeout          = 10 * time.Second
	defaultBreakerMaxRequests      = 1
	defaultBreakerInterval         = time.Minute
)

// BreakerStore decorates a Store with a circuit breaker and latency metrics.
// Lookups that miss and constraint conflicts count as successful calls; only
// backend faults trip the breaker.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]

	name             string
	failureThreshold uint32
	timeout          time.Duration
	maxRequests      uint32
	interval         time.Duration
}

var _ Store = (*BreakerStore)(nil)

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, opts ...BreakerOption) *BreakerStore {
	b := &BreakerStore{
		next:             next,
		name:             defaultBreakerName,
		failureThreshold: defaultBreakerFailureThreshold,
		timeout:          defaultBreakerTimeout,
		maxRequests:      defaultBreakerMaxRequests,
		interval:         defaultBreakerInterval,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failureThreshold
		},
		IsSuccessful: isBenign,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			logger.Get().Warn(context.Background(), "store breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	metrics.UpdateBreakerState(b.name, int(gobreaker.StateClosed))
	return b
}

// State reports the breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func isBenign(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrActiveSessionExists) ||
		errors.Is(err, context.Canceled)
}

func call[T any](b *BreakerStore, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))

	var zero T
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordStoreError(op)
		return zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	if err != nil {
		if !isBenign(err) {
			metrics.RecordStoreError(op)
		}
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

func exec(b *BreakerStore, op string, fn func() error) error {
	_, err := call(b, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// InsertSession implements SessionStore.
func (b *BreakerStore) InsertSession(ctx context.Context, s model.Session) error {
	return exec(b, "insert_session", func() error { return b.next.InsertSession(ctx, s) })
}

// UpdateSession implements SessionStore.
func (b *BreakerStore) UpdateSession(ctx context.Context, s model.Session) error {
	return exec(b, "update_session", func() error { return b.next.UpdateSession(ctx, s) })
}

// GetSession implements SessionStore.
func (b *BreakerStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	return call(b, "get_session", func() (model.Session, error) { return b.next.GetSession(ctx, id) })
}

// ActiveSession implements SessionStore.
func (b *BreakerStore) ActiveSession(ctx context.Context, userID string) (model.Session, error) {
	return call(b, "active_session", func() (model.Session, error) { return b.next.ActiveSession(ctx, userID) })
}

// ListUserSessions implements SessionStore.
func (b *BreakerStore) ListUserSessions(ctx context.Context, userID string, limit, offset int) ([]types.SessionSummary, error) {
	return call(b, "list_user_sessions", func() ([]types.SessionSummary, error) {
		return b.next.ListUserSessions(ctx, userID, limit, offset)
	})
}

// AggregateUser implements SessionStore.
func (b *BreakerStore) AggregateUser(ctx context.Context, userID string, since time.Time) (model.UserAggregate, error) {
	return call(b, "aggregate_user", func() (model.UserAggregate, error) {
		return b.next.AggregateUser(ctx, userID, since)
	})
}

// InsertTelemetryBatch implements TelemetryStore.
func (b *BreakerStore) InsertTelemetryBatch(ctx context.Context, samples []model.TelemetrySample) error {
	return exec(b, "insert_telemetry", func() error { return b.next.InsertTelemetryBatch(ctx, samples) })
}

// QueryTelemetry implements TelemetryStore.
func (b *BreakerStore) QueryTelemetry(ctx context.Context, sessionID string, q TelemetryQuery) ([]model.TelemetrySample, error) {
	return call(b, "query_telemetry", func() ([]model.TelemetrySample, error) {
		return b.next.QueryTelemetry(ctx, sessionID, q)
	})
}

// AggregateTelemetry implements TelemetryStore.
func (b *BreakerStore) AggregateTelemetry(ctx context.Context, sessionID string) (model.TelemetryAggregate, error) {
	return call(b, "aggregate_telemetry", func() (model.TelemetryAggregate, error) {
		return b.next.AggregateTelemetry(ctx, sessionID)
	})
}

// UpsertEvaluation implements EvaluationStore.
func (b *BreakerStore) UpsertEvaluation(ctx context.Context, e model.Evaluation) error {
	return exec(b, "upsert_evaluation", func() error { return b.next.UpsertEvaluation(ctx, e) })
}

// GetEvaluation implements EvaluationStore.
func (b *BreakerStore) GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error) {
	return call(b, "get_evaluation", func() (model.Evaluation, error) { return b.next.GetEvaluation(ctx, sessionID) })
}

// Ping bypasses the breaker so health checks see the backend directly.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close closes the wrapped store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}
