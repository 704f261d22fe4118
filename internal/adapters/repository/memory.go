package repository

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/types"
)

// MemoryStore is a process-local Store. Every method returns copies, so
// callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]model.Session
	active      map[string]string // user id -> session id
	telemetry   map[string][]model.TelemetrySample
	evaluations map[string]model.Evaluation
	closed      bool
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]model.Session),
		active:      make(map[string]string),
		telemetry:   make(map[string][]model.TelemetrySample),
		evaluations: make(map[string]model.Evaluation),
	}
}

// InsertSession implements SessionStore.
func (s *MemoryStore) InsertSession(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrDuplicate
	}
	if sess.Status == model.StatusActive {
		if _, ok := s.active[sess.UserID]; ok {
			return ErrActiveSessionExists
		}
		s.active[sess.UserID] = sess.ID
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// UpdateSession implements SessionStore.
func (s *MemoryStore) UpdateSession(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	old, ok := s.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	if sess.Status == model.StatusActive {
		if id, taken := s.active[old.UserID]; taken && id != sess.ID {
			return ErrActiveSessionExists
		}
		s.active[old.UserID] = sess.ID
	} else if s.active[old.UserID] == sess.ID {
		delete(s.active, old.UserID)
	}
	// Identity fields never change.
	sess.UserID = old.UserID
	sess.StartedAt = old.StartedAt
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// GetSession implements SessionStore.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return model.Session{}, err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return cloneSession(sess), nil
}

// ActiveSession implements SessionStore.
func (s *MemoryStore) ActiveSession(ctx context.Context, userID string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return model.Session{}, err
	}
	id, ok := s.active[userID]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

// ListUserSessions implements SessionStore.
func (s *MemoryStore) ListUserSessions(ctx context.Context, userID string, limit, offset int) ([]types.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	owned := lo.Filter(lo.Values(s.sessions), func(sess model.Session, _ int) bool {
		return sess.UserID == userID
	})
	slices.SortFunc(owned, func(a, b model.Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	owned = page(owned, limit, offset)

	out := make([]types.SessionSummary, 0, len(owned))
	for _, sess := range owned {
		row := types.SessionSummary{Session: cloneSession(sess)}
		if ev, ok := s.evaluations[sess.ID]; ok {
			score := ev.Score
			row.Score = &score
			row.Grade = ev.Grade
		}
		out = append(out, row)
	}
	return out, nil
}

// AggregateUser implements SessionStore.
func (s *MemoryStore) AggregateUser(ctx context.Context, userID string, since time.Time) (model.UserAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return model.UserAggregate{}, err
	}
	var agg model.UserAggregate
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.StartedAt.Before(since) {
			continue
		}
		var ev *model.Evaluation
		if e, ok := s.evaluations[sess.ID]; ok {
			ev = &e
		}
		agg.Merge(model.SessionAggregate(sess, ev))
	}
	return agg, nil
}

// InsertTelemetryBatch implements TelemetryStore. The batch is validated in
// full before anything is appended.
func (s *MemoryStore) InsertTelemetryBatch(ctx context.Context, samples []model.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	for _, smp := range samples {
		if _, ok := s.sessions[smp.SessionID]; !ok {
			return ErrNotFound
		}
	}
	for _, smp := range samples {
		s.telemetry[smp.SessionID] = append(s.telemetry[smp.SessionID], smp)
	}
	return nil
}

// QueryTelemetry implements TelemetryStore.
func (s *MemoryStore) QueryTelemetry(ctx context.Context, sessionID string, q TelemetryQuery) ([]model.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	rows := slices.Clone(s.telemetry[sessionID])
	if !q.Since.IsZero() {
		rows = lo.Filter(rows, func(smp model.TelemetrySample, _ int) bool {
			return smp.Timestamp.After(q.Since)
		})
	}
	slices.SortStableFunc(rows, func(a, b model.TelemetrySample) int {
		if q.Order == Descending {
			return b.Timestamp.Compare(a.Timestamp)
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
	return page(rows, q.Limit, q.Offset), nil
}

// AggregateTelemetry implements TelemetryStore.
func (s *MemoryStore) AggregateTelemetry(ctx context.Context, sessionID string) (model.TelemetryAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return model.TelemetryAggregate{}, err
	}
	return aggregate(s.telemetry[sessionID]), nil
}

// UpsertEvaluation implements EvaluationStore.
func (s *MemoryStore) UpsertEvaluation(ctx context.Context, e model.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if _, ok := s.sessions[e.SessionID]; !ok {
		return ErrNotFound
	}
	e.Report = slices.Clone(e.Report)
	s.evaluations[e.SessionID] = e
	return nil
}

// GetEvaluation implements EvaluationStore.
func (s *MemoryStore) GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return model.Evaluation{}, err
	}
	e, ok := s.evaluations[sessionID]
	if !ok {
		return model.Evaluation{}, ErrNotFound
	}
	e.Report = slices.Clone(e.Report)
	return e, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usable(ctx)
}

// Close implements Store. Further calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// usable must be called with the lock held.
func (s *MemoryStore) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrUnavailable
	}
	return nil
}

func cloneSession(sess model.Session) model.Session {
	if sess.EndedAt != nil {
		ended := *sess.EndedAt
		sess.EndedAt = &ended
	}
	return sess
}

func page[T any](rows []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return []T{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func aggregate(rows []model.TelemetrySample) model.TelemetryAggregate {
	if len(rows) == 0 {
		return model.TelemetryAggregate{}
	}
	agg := model.TelemetryAggregate{
		Count:    len(rows),
		FirstAt:  rows[0].Timestamp,
		LastAt:   rows[0].Timestamp,
		MinSpeed: math.Inf(1),
	}
	var speed, steer, brake, throttle, lane float64
	for _, r := range rows {
		if r.Timestamp.Before(agg.FirstAt) {
			agg.FirstAt = r.Timestamp
		}
		if r.Timestamp.After(agg.LastAt) {
			agg.LastAt = r.Timestamp
		}
		agg.MaxSpeed = math.Max(agg.MaxSpeed, r.Speed)
		agg.MinSpeed = math.Min(agg.MinSpeed, r.Speed)
		speed += r.Speed
		steer += math.Abs(r.SteeringAngle)
		brake += r.BrakeForce
		throttle += r.ThrottleForce
		lane += math.Abs(r.LanePosition)
		if r.Collision {
			agg.CollisionCount++
		}
	}
	n := float64(len(rows))
	agg.AvgSpeed = speed / n
	agg.AvgAbsSteering = steer / n
	agg.AvgBrake = brake / n
	agg.AvgThrottle = throttle / n
	agg.AvgAbsLane = lane / n
	return agg
}
