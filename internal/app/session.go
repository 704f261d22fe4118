package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/types"
	"github.com/okian/drivescore/internal/validation"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

// Defaults applied to omitted CreateSessionRequest fields.
const (
	DefaultEnvironment = model.EnvironmentCity
	DefaultVehicleType = "sedan"
	DefaultInputDevice = model.DeviceKeyboard
)

// CreateSessionRequest carries the parameters of a new drive.
type CreateSessionRequest struct {
	UserID      string `json:"user_id" validate:"required,max=128"`
	Environment string `json:"environment_type" validate:"omitempty,oneof=city highway night rain"`
	VehicleType string `json:"vehicle_type" validate:"max=64"`
	InputDevice string `json:"input_device" validate:"omitempty,oneof=keyboard gamepad wheel"`
}

// EndResult is the outcome of ending a session.
type EndResult struct {
	Session model.Session      `json:"session"`
	Stats   model.SessionStats `json:"stats"`
	// Evaluation is nil when scoring failed after the session was closed.
	Evaluation *model.Evaluation `json:"evaluation,omitempty"`
}

// SessionManager owns the session lifecycle.
type SessionManager struct {
	store     repository.Store
	ingest    *Ingestor
	evaluator *Evaluator

	users    *keyedMutex
	sessions *keyedMutex

	newID func() string
	now   func() time.Time

	logger logger.Logger
}

// NewSessionManager wires the lifecycle to its collaborators.
func NewSessionManager(
	store repository.Store,
	ingest *Ingestor,
	evaluator *Evaluator,
	newID func() string,
	now func() time.Time,
	log logger.Logger,
) *SessionManager {
	return &SessionManager{
		store:     store,
		ingest:    ingest,
		evaluator: evaluator,
		users:     newKeyedMutex(),
		sessions:  newKeyedMutex(),
		newID:     newID,
		now:       now,
		logger:    log,
	}
}

// CreateSession starts a drive for the user. A session the user still has
// active is ended as aborted first.
func (m *SessionManager) CreateSession(ctx context.Context, req CreateSessionRequest) (model.Session, error) {
	if err := validation.Struct(req); err != nil {
		return model.Session{}, err
	}
	env := DefaultEnvironment
	if req.Environment != "" {
		parsed, err := model.ParseEnvironment(req.Environment)
		if err != nil {
			return model.Session{}, err
		}
		env = parsed
	}
	device := DefaultInputDevice
	if req.InputDevice != "" {
		parsed, err := model.ParseInputDevice(req.InputDevice)
		if err != nil {
			return model.Session{}, err
		}
		device = parsed
	}
	vehicle := req.VehicleType
	if vehicle == "" {
		vehicle = DefaultVehicleType
	}

	unlock := m.users.Lock(req.UserID)
	defer unlock()

	if err := m.takeOver(ctx, req.UserID); err != nil {
		return model.Session{}, err
	}

	sess := model.Session{
		ID:          m.newID(),
		UserID:      req.UserID,
		StartedAt:   m.now().UTC(),
		Environment: env,
		VehicleType: vehicle,
		InputDevice: device,
		Status:      model.StatusActive,
	}
	if err := m.store.InsertSession(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return model.Session{}, fmt.Errorf("%w: user %s already has an active session", model.ErrInvalidState, req.UserID)
		}
		return model.Session{}, storageErr("insert session", err)
	}

	metrics.RecordSessionStarted(string(env))
	m.logger.Info(ctx, "session started",
		logger.String("sessionID", sess.ID),
		logger.String("userID", sess.UserID),
		logger.String("environment", string(env)),
	)
	return sess, nil
}

// takeOver aborts the user's active session, if any. The caller holds the
// user lock.
func (m *SessionManager) takeOver(ctx context.Context, userID string) error {
	prior, err := m.store.ActiveSession(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("active session", err)
	}

	priorID := prior.ID
	unlock := m.sessions.Lock(priorID)
	defer unlock()

	// Re-read under the session lock; a concurrent EndSession may have won.
	prior, err = m.store.GetSession(ctx, priorID)
	if err != nil {
		return lookupErr(priorID, model.ErrSessionNotFound, err)
	}
	if prior.Status.IsTerminal() {
		return nil
	}

	res, err := m.end(ctx, prior, model.StatusAborted)
	if err != nil && res.Session.ID == "" {
		return err
	}
	if err != nil {
		m.logger.Warn(ctx, "evaluation of aborted session failed",
			logger.String("sessionID", prior.ID),
			logger.Error(err),
		)
	}
	metrics.RecordSessionTakeover()
	m.logger.Info(ctx, "active session aborted by a new session",
		logger.String("sessionID", prior.ID),
		logger.String("userID", userID),
	)
	return nil
}

// EndSession closes an active session, computes its totals and evaluates it.
// An empty status means completed.
//
// When only the evaluation fails the session stays ended and the error is
// returned alongside the result.
func (m *SessionManager) EndSession(ctx context.Context, sessionID, status string) (EndResult, error) {
	st, err := model.ParseEndStatus(status)
	if err != nil {
		return EndResult{}, err
	}
	if sessionID == "" {
		return EndResult{}, invalidParam("session id is required")
	}

	unlock := m.sessions.Lock(sessionID)
	defer unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return EndResult{}, lookupErr(sessionID, model.ErrSessionNotFound, err)
	}
	if sess.Status.IsTerminal() {
		return EndResult{}, fmt.Errorf("%w: session %s is already %s", model.ErrInvalidState, sessionID, sess.Status)
	}
	return m.end(ctx, sess, st)
}

// end runs flush, aggregate, status update and evaluation in that order. The
// caller holds the session lock.
func (m *SessionManager) end(ctx context.Context, sess model.Session, status model.Status) (EndResult, error) {
	if err := m.ingest.Seal(ctx, sess.ID); err != nil {
		return EndResult{}, err
	}

	agg, err := m.store.AggregateTelemetry(ctx, sess.ID)
	if err != nil {
		m.ingest.Unseal(sess.ID)
		return EndResult{}, storageErr("aggregate telemetry", err)
	}
	stats := sessionStats(agg)

	ended := m.now().UTC()
	sess.Status = status
	sess.EndedAt = &ended
	sess.TotalTime = stats.TotalTime
	sess.TotalDistance = stats.TotalDistance
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		m.ingest.Unseal(sess.ID)
		return EndResult{}, storageErr("update session", err)
	}
	m.ingest.Release(sess.ID)

	metrics.RecordSessionEnded(string(status))
	m.logger.Info(ctx, "session ended",
		logger.String("sessionID", sess.ID),
		logger.String("status", string(status)),
		logger.Int("samples", stats.SampleCount),
		logger.Float64("distanceKm", stats.TotalDistance),
	)

	res := EndResult{Session: sess, Stats: stats}
	ev, err := m.evaluator.Evaluate(ctx, sess)
	if err != nil {
		m.logger.Error(ctx, "evaluation failed", logger.String("sessionID", sess.ID), logger.Error(err))
		return res, fmt.Errorf("evaluate session %s: %w", sess.ID, err)
	}
	res.Evaluation = &ev
	return res, nil
}

// sessionStats derives the end-of-session totals. Distance assumes the
// average speed held over the whole elapsed time.
func sessionStats(agg model.TelemetryAggregate) model.SessionStats {
	elapsed := agg.Elapsed()
	return model.SessionStats{
		SampleCount:   agg.Count,
		MaxSpeed:      scoring.Round2(agg.MaxSpeed),
		AvgSpeed:      scoring.Round2(agg.AvgSpeed),
		TotalTime:     int64(elapsed.Seconds()),
		TotalDistance: scoring.Round2(agg.AvgSpeed * elapsed.Seconds() / 3600),
	}
}

// GetSession returns the session or ErrSessionNotFound.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	if sessionID == "" {
		return model.Session{}, invalidParam("session id is required")
	}
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, lookupErr(sessionID, model.ErrSessionNotFound, err)
	}
	return sess, nil
}

// GetActiveSession returns the user's active session or ErrSessionNotFound.
func (m *SessionManager) GetActiveSession(ctx context.Context, userID string) (model.Session, error) {
	if userID == "" {
		return model.Session{}, invalidParam("user id is required")
	}
	sess, err := m.store.ActiveSession(ctx, userID)
	if err != nil {
		return model.Session{}, lookupErr(userID, model.ErrSessionNotFound, err)
	}
	return sess, nil
}

// Paging of ListUserSessions.
const (
	defaultSessionPageSize = 10
	maxSessionPageSize     = 100
)

// ListUserSessions returns one page of the user's sessions, newest first.
// Pages start at 1.
func (m *SessionManager) ListUserSessions(ctx context.Context, userID string, page, limit int) ([]types.SessionSummary, error) {
	if userID == "" {
		return nil, invalidParam("user id is required")
	}
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = defaultSessionPageSize
	case limit > maxSessionPageSize:
		limit = maxSessionPageSize
	}
	rows, err := m.store.ListUserSessions(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return rows, nil
}

// Window of UserStats, in days.
const (
	defaultStatsDays = 30
	maxStatsDays     = 3650
)

// UserStats totals the user's sessions started in the last days days. Zero
// days means the default window.
func (m *SessionManager) UserStats(ctx context.Context, userID string, days int) (types.UserStats, error) {
	if userID == "" {
		return types.UserStats{}, invalidParam("user id is required")
	}
	switch {
	case days == 0:
		days = defaultStatsDays
	case days < 0 || days > maxStatsDays:
		return types.UserStats{}, invalidParam("days must be between 1 and %d", maxStatsDays)
	}
	since := m.now().UTC().AddDate(0, 0, -days)
	agg, err := m.store.AggregateUser(ctx, userID, since)
	if err != nil {
		return types.UserStats{}, storageErr("user stats", err)
	}
	return types.NewUserStats(userID, days, since, agg), nil
}

// Reevaluate scores an ended session again, replacing its evaluation.
func (m *SessionManager) Reevaluate(ctx context.Context, sessionID string) (model.Evaluation, error) {
	if sessionID == "" {
		return model.Evaluation{}, invalidParam("session id is required")
	}

	unlock := m.sessions.Lock(sessionID)
	defer unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Evaluation{}, lookupErr(sessionID, model.ErrSessionNotFound, err)
	}
	if !sess.Status.IsTerminal() {
		return model.Evaluation{}, fmt.Errorf("%w: session %s is still active", model.ErrInvalidState, sessionID)
	}
	return m.evaluator.Evaluate(ctx, sess)
}
