// Package service wires ingestion, the session lifecycle and scoring into the
// operations exposed by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/drivescore/internal/adapters/mq/queue"
	"github.com/okian/drivescore/internal/adapters/mq/worker"
	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/telemetry"
	"github.com/okian/drivescore/internal/domain/types"
	"github.com/okian/drivescore/internal/validation"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

// Telemetry read limits.
const (
	defaultTelemetryLimit = 1000
	maxTelemetryLimit     = 1000
	defaultLatestWindow   = 30 * time.Second
)

// reevaluateAdapter adapts the session manager to worker.Reevaluator.
type reevaluateAdapter struct {
	sessions *SessionManager
}

func (a reevaluateAdapter) Reevaluate(ctx context.Context, sessionID string) error {
	_, err := a.sessions.Reevaluate(ctx, sessionID)
	return err
}

// Service implements the API dependencies for the scoring system.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	analyzer  *behavior.Analyzer
	engine    *scoring.Engine
	scorer    scoring.Scorer
	norm      *telemetry.Normalizer
	ingest    *Ingestor
	evaluator *Evaluator
	sessions  *SessionManager
	jobs      *queue.InMemoryQueue
	pool      *worker.Pool

	flushSize   int
	workerCount int
	queueSize   int
	thresholds  behavior.Thresholds
	grades      scoring.GradeScale
	now         func() time.Time
	newID       func() string

	started bool

	logger logger.Logger
}

// New constructs a Service on top of store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		flushSize:   defaultFlushSize,
		workerCount: 2,
		queueSize:   1024,
		thresholds:  behavior.DefaultThresholds(),
		grades:      scoring.DefaultGradeScale(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.analyzer = behavior.NewAnalyzer(behavior.WithThresholds(s.thresholds))
	s.engine = scoring.NewEngine(scoring.WithGradeScale(s.grades), scoring.WithClock(s.now))
	if s.scorer == nil {
		s.scorer = s.engine
	}
	s.norm = telemetry.NewNormalizer(telemetry.WithClock(s.now))
	s.ingest = NewIngestor(store, s.norm, s.flushSize, s.logger.Named("ingest"))
	s.evaluator = NewEvaluator(store, s.analyzer, s.scorer, s.logger.Named("evaluator"))
	s.sessions = NewSessionManager(store, s.ingest, s.evaluator, s.newID, s.now, s.logger.Named("sessions"))
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.jobs, reevaluateAdapter{sessions: s.sessions})
	return s
}

// Start launches the re-evaluation workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.store.Ping(ctx); err != nil {
		return storageErr("ping store", err)
	}
	s.pool.Start(context.WithoutCancel(ctx))
	s.started = true
	s.logger.Info(ctx, "drivescore service started",
		logger.Int("flushSize", s.flushSize),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains queued re-evaluations and flushes every buffered sample.
// Flush failures are joined into the returned error.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping drivescore service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.ingest.FlushAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush buffers: %w", err))
	}
	s.started = false

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error(ctx, "drivescore service stopped with errors", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "drivescore service stopped")
	return nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storageErr("ping store", err)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bufferedSessions, bufferedSamples := s.ingest.BufferStats()
	stats := map[string]interface{}{
		"started":          s.started,
		"flushSize":        s.flushSize,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"queueLength":      s.jobs.Len(context.Background()),
		"bufferedSessions": bufferedSessions,
		"bufferedSamples":  bufferedSamples,
		"reevaluations":    s.pool.Stats(),
	}
	if b, ok := s.store.(interface{ State() string }); ok {
		stats["storeBreaker"] = b.State()
	}
	metrics.UpdateWorkerQueueLength(s.jobs.Len(context.Background()))
	return stats
}

// CreateSession starts a new drive, aborting the user's active one.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (model.Session, error) {
	return s.sessions.CreateSession(ctx, req)
}

// EndSession ends an active session and evaluates it.
func (s *Service) EndSession(ctx context.Context, sessionID, status string) (EndResult, error) {
	return s.sessions.EndSession(ctx, sessionID, status)
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	return s.sessions.GetSession(ctx, sessionID)
}

// GetActiveSession returns the user's active session.
func (s *Service) GetActiveSession(ctx context.Context, userID string) (model.Session, error) {
	return s.sessions.GetActiveSession(ctx, userID)
}

// ListUserSessions returns a page of the user's sessions, newest first.
func (s *Service) ListUserSessions(ctx context.Context, userID string, page, limit int) ([]types.SessionSummary, error) {
	return s.sessions.ListUserSessions(ctx, userID, page, limit)
}

// UserStats totals the user's recent sessions and evaluations.
func (s *Service) UserStats(ctx context.Context, userID string, days int) (types.UserStats, error) {
	return s.sessions.UserStats(ctx, userID, days)
}

// Ingest buffers one sample.
func (s *Service) Ingest(ctx context.Context, sessionID string, raw telemetry.Raw) (types.IngestResult, error) {
	return s.ingest.Ingest(ctx, sessionID, raw)
}

// IngestBatch writes many samples at once.
func (s *Service) IngestBatch(ctx context.Context, sessionID string, raws []telemetry.Raw) (types.IngestResult, error) {
	return s.ingest.IngestBatch(ctx, sessionID, raws)
}

// Flush persists the session's buffered samples.
func (s *Service) Flush(ctx context.Context, sessionID string) (types.IngestResult, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return types.IngestResult{}, err
	}
	return s.ingest.Flush(ctx, sessionID)
}

// FlushAll persists every buffered sample.
func (s *Service) FlushAll(ctx context.Context) error {
	return s.ingest.FlushAll(ctx)
}

// ListTelemetry returns persisted samples oldest first. A zero limit means
// the default page; larger limits are capped.
func (s *Service) ListTelemetry(ctx context.Context, sessionID string, limit, offset int) ([]model.TelemetrySample, error) {
	if limit < 0 || offset < 0 {
		return nil, invalidParam("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = defaultTelemetryLimit
	}
	limit = min(limit, maxTelemetryLimit)

	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.store.QueryTelemetry(ctx, sessionID, repository.TelemetryQuery{
		Order:  repository.Ascending,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, storageErr("query telemetry", err)
	}
	return rows, nil
}

// LatestTelemetry returns samples newer than now minus window, newest first.
// A non-positive window uses the default.
func (s *Service) LatestTelemetry(ctx context.Context, sessionID string, window time.Duration) ([]model.TelemetrySample, error) {
	if window <= 0 {
		window = defaultLatestWindow
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.store.QueryTelemetry(ctx, sessionID, repository.TelemetryQuery{
		Since: s.now().Add(-window),
		Order: repository.Descending,
		Limit: maxTelemetryLimit,
	})
	if err != nil {
		return nil, storageErr("query telemetry", err)
	}
	return rows, nil
}

// TelemetryStats summarizes the persisted telemetry of a session.
func (s *Service) TelemetryStats(ctx context.Context, sessionID string) (types.TelemetryStats, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return types.TelemetryStats{}, err
	}
	agg, err := s.store.AggregateTelemetry(ctx, sessionID)
	if err != nil {
		return types.TelemetryStats{}, storageErr("aggregate telemetry", err)
	}
	for _, v := range []*float64{
		&agg.MaxSpeed, &agg.AvgSpeed, &agg.MinSpeed,
		&agg.AvgAbsSteering, &agg.AvgBrake, &agg.AvgThrottle, &agg.AvgAbsLane,
	} {
		*v = scoring.Round2(*v)
	}
	out := types.NewTelemetryStats(agg)
	out.SamplesPerSecond = scoring.Round2(out.SamplesPerSecond)
	return out, nil
}

// AnalyzeBehavior runs the detectors over the session's persisted telemetry
// without storing anything.
func (s *Service) AnalyzeBehavior(ctx context.Context, sessionID string) (behavior.Metrics, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return behavior.Metrics{}, err
	}
	m, _, err := s.evaluator.Analyze(ctx, sess)
	return m, err
}

// GetEvaluation returns the stored evaluation of a session.
func (s *Service) GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return model.Evaluation{}, err
	}
	ev, err := s.store.GetEvaluation(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Evaluation{}, fmt.Errorf("%w: %s", model.ErrEvaluationNotFound, sessionID)
	}
	if err != nil {
		return model.Evaluation{}, storageErr("get evaluation", err)
	}
	return ev, nil
}

// Reevaluate scores an ended session again and returns the new evaluation.
func (s *Service) Reevaluate(ctx context.Context, sessionID string) (model.Evaluation, error) {
	return s.sessions.Reevaluate(ctx, sessionID)
}

// ReevaluateAsync queues sessions for background re-evaluation. It stops at
// the first session that cannot be queued.
func (s *Service) ReevaluateAsync(ctx context.Context, sessionIDs ...string) error {
	for _, id := range sessionIDs {
		if id == "" {
			return invalidParam("session id is required")
		}
		if s.jobs.Enqueue(ctx, queue.Job{SessionID: id, RequestedAt: s.now()}) {
			continue
		}
		if s.jobs.IsClosed() {
			return fmt.Errorf("%w: %w", ErrBusy, queue.ErrClosed)
		}
		return fmt.Errorf("%w: %w", ErrBusy, queue.ErrFull)
	}
	return nil
}

// LiveCheckRequest is one sample checked in real time. The speed limit comes
// from the session when SessionID is set, otherwise from Environment.
type LiveCheckRequest struct {
	SessionID   string        `json:"session_id"`
	Environment string        `json:"environment_type" validate:"omitempty,oneof=city highway night rain"`
	Data        telemetry.Raw `json:"current_data" validate:"required"`
}

// LiveCheckResult is the verdict plus the score it would cost.
type LiveCheckResult struct {
	behavior.LiveResult
	InstantPenalty float64   `json:"instant_penalty"`
	CheckedAt      time.Time `json:"timestamp"`
}

// LiveCheck tests one sample against the thresholds. Nothing is stored.
func (s *Service) LiveCheck(ctx context.Context, req LiveCheckRequest) (LiveCheckResult, error) {
	if err := validation.Struct(req); err != nil {
		return LiveCheckResult{}, err
	}
	if req.SessionID == "" && req.Environment == "" {
		return LiveCheckResult{}, invalidParam("session_id or environment_type is required")
	}

	var env model.Environment
	if req.SessionID != "" {
		sess, err := s.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return LiveCheckResult{}, err
		}
		env = sess.Environment
	} else {
		parsed, err := model.ParseEnvironment(req.Environment)
		if err != nil {
			return LiveCheckResult{}, err
		}
		env = parsed
	}

	res := s.analyzer.Check(env, s.norm.Normalize(req.SessionID, req.Data))
	outcome := "clean"
	if !res.Clean() {
		outcome = "violation"
	}
	metrics.RecordLiveCheck(outcome)
	return LiveCheckResult{
		LiveResult:     res,
		InstantPenalty: s.engine.InstantPenalty(res),
		CheckedAt:      s.now().UTC(),
	}, nil
}
