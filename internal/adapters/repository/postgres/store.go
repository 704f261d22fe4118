package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/types"
)

// SQLSTATE codes mapped onto repository errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"

	activeSessionIndex = "sessions_one_active_per_user"
)

// DB is the subset of a pgx pool the store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store is a repository.Store backed by PostgreSQL.
type Store struct {
	db DB
}

var _ repository.Store = (*Store)(nil)

// New wraps db. The store owns db and closes it on Close.
func New(db DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `id, user_id, started_at, ended_at, environment, vehicle_type,
	input_device, status, total_distance_km, total_time_seconds`

var telemetryColumns = []string{
	"session_id", "ts", "speed", "steering_angle", "brake_force", "throttle_force",
	"gear", "rpm", "lane_position", "position_x", "position_y", "position_z", "collision",
}

// InsertSession implements repository.SessionStore.
func (s *Store) InsertSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.UserID, sess.StartedAt, sess.EndedAt, string(sess.Environment), sess.VehicleType,
		string(sess.InputDevice), string(sess.Status), sess.TotalDistance, sess.TotalTime)
	return mapError("insert session", err)
}

// UpdateSession implements repository.SessionStore.
func (s *Store) UpdateSession(ctx context.Context, sess model.Session) error {
	tag, err := s.db.Exec(ctx, `UPDATE sessions
		SET ended_at = $2, status = $3, total_distance_km = $4, total_time_seconds = $5
		WHERE id = $1`,
		sess.ID, sess.EndedAt, string(sess.Status), sess.TotalDistance, sess.TotalTime)
	if err != nil {
		return mapError("update session", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetSession implements repository.SessionStore.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	return sess, mapError("get session", err)
}

// ActiveSession implements repository.SessionStore.
func (s *Store) ActiveSession(ctx context.Context, userID string) (model.Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = 'active'`, userID)
	sess, err := scanSession(row)
	return sess, mapError("active session", err)
}

// ListUserSessions implements repository.SessionStore.
func (s *Store) ListUserSessions(ctx context.Context, userID string, limit, offset int) ([]types.SessionSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT s.id, s.user_id, s.started_at, s.ended_at, s.environment,
		s.vehicle_type, s.input_device, s.status, s.total_distance_km, s.total_time_seconds,
		e.total_score, e.grade
		FROM sessions s
		LEFT JOIN evaluations e ON e.session_id = s.id
		WHERE s.user_id = $1
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT $2 OFFSET $3`, userID, limitArg(limit), max(offset, 0))
	if err != nil {
		return nil, mapError("list user sessions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SessionSummary, error) {
		var (
			sum   types.SessionSummary
			grade *string
		)
		dest := append(sessionDest(&sum.Session), &sum.Score, &grade)
		if err := row.Scan(dest...); err != nil {
			return sum, err
		}
		if grade != nil {
			sum.Grade = *grade
		}
		return sum, nil
	})
	return out, mapError("list user sessions", err)
}

// AggregateUser implements repository.SessionStore. Totals are grouped per
// environment in SQL and folded here.
func (s *Store) AggregateUser(ctx context.Context, userID string, since time.Time) (model.UserAggregate, error) {
	rows, err := s.db.Query(ctx, `SELECT s.environment, COUNT(*),
		COUNT(*) FILTER (WHERE s.status = 'completed'),
		COUNT(*) FILTER (WHERE s.status = 'aborted'),
		COALESCE(SUM(s.total_time_seconds), 0)::bigint,
		COALESCE(SUM(s.total_distance_km), 0),
		COUNT(e.session_id),
		COALESCE(SUM(e.total_score), 0)::bigint,
		COALESCE(MIN(e.total_score), 0), COALESCE(MAX(e.total_score), 0),
		COALESCE(SUM(e.overspeed_count), 0)::bigint,
		COALESCE(SUM(e.collision_count), 0)::bigint,
		COUNT(*) FILTER (WHERE e.grade = ANY($3)),
		COUNT(*) FILTER (WHERE e.grade = $4)
		FROM sessions s
		LEFT JOIN evaluations e ON e.session_id = s.id
		WHERE s.user_id = $1 AND s.started_at >= $2
		GROUP BY s.environment`, userID, since, model.ExcellentGrades, model.FailGrade)
	if err != nil {
		return model.UserAggregate{}, mapError("aggregate user", err)
	}
	parts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UserAggregate, error) {
		var (
			part model.UserAggregate
			env  model.Environment
		)
		err := row.Scan(&env, &part.Sessions, &part.Completed, &part.Aborted, &part.TotalTimeSeconds,
			&part.TotalDistanceKm, &part.Evaluations, &part.ScoreSum, &part.MinScore, &part.MaxScore,
			&part.OverspeedSum, &part.CollisionSum, &part.Excellent, &part.Failed)
		part.ByEnvironment = map[model.Environment]int{env: part.Sessions}
		return part, err
	})
	if err != nil {
		return model.UserAggregate{}, mapError("aggregate user", err)
	}
	var agg model.UserAggregate
	for _, part := range parts {
		agg.Merge(part)
	}
	return agg, nil
}

// InsertTelemetryBatch implements repository.TelemetryStore with a single
// COPY inside a transaction.
func (s *Store) InsertTelemetryBatch(ctx context.Context, samples []model.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"telemetry"}, telemetryColumns,
			pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
				t := samples[i]
				return []any{
					t.SessionID, t.Timestamp, t.Speed, t.SteeringAngle, t.BrakeForce, t.ThrottleForce,
					t.Gear, t.RPM, t.LanePosition, t.PositionX, t.PositionY, t.PositionZ, t.Collision,
				}, nil
			}))
		if err != nil {
			return err
		}
		if n != int64(len(samples)) {
			return fmt.Errorf("copied %d of %d samples", n, len(samples))
		}
		return nil
	})
	return mapError("insert telemetry", err)
}

// QueryTelemetry implements repository.TelemetryStore.
func (s *Store) QueryTelemetry(ctx context.Context, sessionID string, q repository.TelemetryQuery) ([]model.TelemetrySample, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + strings.Join(telemetryColumns, ", ") + ` FROM telemetry WHERE session_id = $1`)
	args := []any{sessionID}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		fmt.Fprintf(&sb, " AND ts > $%d", len(args))
	}
	if q.Order == repository.Descending {
		sb.WriteString(" ORDER BY ts DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY ts ASC, id ASC")
	}
	args = append(args, limitArg(q.Limit), max(q.Offset, 0))
	fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError("query telemetry", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TelemetrySample, error) {
		var t model.TelemetrySample
		err := row.Scan(&t.SessionID, &t.Timestamp, &t.Speed, &t.SteeringAngle, &t.BrakeForce,
			&t.ThrottleForce, &t.Gear, &t.RPM, &t.LanePosition, &t.PositionX, &t.PositionY,
			&t.PositionZ, &t.Collision)
		t.Timestamp = t.Timestamp.UTC()
		return t, err
	})
	return out, mapError("query telemetry", err)
}

// AggregateTelemetry implements repository.TelemetryStore.
func (s *Store) AggregateTelemetry(ctx context.Context, sessionID string) (model.TelemetryAggregate, error) {
	var (
		agg         model.TelemetryAggregate
		first, last *time.Time
	)
	err := s.db.QueryRow(ctx, `SELECT COUNT(*), MIN(ts), MAX(ts),
		COALESCE(MAX(speed), 0), COALESCE(AVG(speed), 0), COALESCE(MIN(speed), 0),
		COALESCE(AVG(ABS(steering_angle)), 0), COALESCE(AVG(brake_force), 0),
		COALESCE(AVG(throttle_force), 0), COALESCE(AVG(ABS(lane_position)), 0),
		COUNT(*) FILTER (WHERE collision)
		FROM telemetry WHERE session_id = $1`, sessionID).
		Scan(&agg.Count, &first, &last, &agg.MaxSpeed, &agg.AvgSpeed, &agg.MinSpeed,
			&agg.AvgAbsSteering, &agg.AvgBrake, &agg.AvgThrottle, &agg.AvgAbsLane, &agg.CollisionCount)
	if err != nil {
		return model.TelemetryAggregate{}, mapError("aggregate telemetry", err)
	}
	if first != nil {
		agg.FirstAt = first.UTC()
	}
	if last != nil {
		agg.LastAt = last.UTC()
	}
	return agg, nil
}

// UpsertEvaluation implements repository.EvaluationStore.
func (s *Store) UpsertEvaluation(ctx context.Context, e model.Evaluation) error {
	report := []byte(e.Report)
	if len(report) == 0 {
		report = []byte("{}")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO evaluations (session_id, overspeed_count, sudden_brake_count,
		sudden_acceleration_count, lane_violation_count, collision_count, signal_violation_count,
		total_score, grade, max_speed, avg_speed, harsh_braking_events, smooth_driving_percentage,
		report, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO UPDATE SET
			overspeed_count = EXCLUDED.overspeed_count,
			sudden_brake_count = EXCLUDED.sudden_brake_count,
			sudden_acceleration_count = EXCLUDED.sudden_acceleration_count,
			lane_violation_count = EXCLUDED.lane_violation_count,
			collision_count = EXCLUDED.collision_count,
			signal_violation_count = EXCLUDED.signal_violation_count,
			total_score = EXCLUDED.total_score,
			grade = EXCLUDED.grade,
			max_speed = EXCLUDED.max_speed,
			avg_speed = EXCLUDED.avg_speed,
			harsh_braking_events = EXCLUDED.harsh_braking_events,
			smooth_driving_percentage = EXCLUDED.smooth_driving_percentage,
			report = EXCLUDED.report,
			evaluated_at = EXCLUDED.evaluated_at`,
		e.SessionID, e.OverspeedCount, e.SuddenBrakeCount, e.SuddenAccelerationCount,
		e.LaneViolationCount, e.CollisionCount, e.SignalViolationCount, e.Score, e.Grade,
		e.MaxSpeed, e.AvgSpeed, e.HarshBrakingEvents, e.SmoothDrivingPercentage, string(report),
		e.EvaluatedAt)
	return mapError("upsert evaluation", err)
}

// GetEvaluation implements repository.EvaluationStore.
func (s *Store) GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error) {
	var (
		e      model.Evaluation
		report string
	)
	err := s.db.QueryRow(ctx, `SELECT session_id, overspeed_count, sudden_brake_count,
		sudden_acceleration_count, lane_violation_count, collision_count, signal_violation_count,
		total_score, grade, max_speed, avg_speed, harsh_braking_events, smooth_driving_percentage,
		report::text, evaluated_at
		FROM evaluations WHERE session_id = $1`, sessionID).
		Scan(&e.SessionID, &e.OverspeedCount, &e.SuddenBrakeCount, &e.SuddenAccelerationCount,
			&e.LaneViolationCount, &e.CollisionCount, &e.SignalViolationCount, &e.Score, &e.Grade,
			&e.MaxSpeed, &e.AvgSpeed, &e.HarshBrakingEvents, &e.SmoothDrivingPercentage, &report,
			&e.EvaluatedAt)
	if err != nil {
		return model.Evaluation{}, mapError("get evaluation", err)
	}
	e.Report = []byte(report)
	e.EvaluatedAt = e.EvaluatedAt.UTC()
	return e, nil
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func sessionDest(sess *model.Session) []any {
	return []any{
		&sess.ID, &sess.UserID, &sess.StartedAt, &sess.EndedAt, &sess.Environment, &sess.VehicleType,
		&sess.InputDevice, &sess.Status, &sess.TotalDistance, &sess.TotalTime,
	}
}

func scanSession(row pgx.Row) (model.Session, error) {
	var sess model.Session
	if err := row.Scan(sessionDest(&sess)...); err != nil {
		return model.Session{}, err
	}
	sess.StartedAt = sess.StartedAt.UTC()
	if sess.EndedAt != nil {
		ended := sess.EndedAt.UTC()
		sess.EndedAt = &ended
	}
	return sess, nil
}

// limitArg turns a non-positive limit into NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == activeSessionIndex:
			return fmt.Errorf("%s: %w", op, repository.ErrActiveSessionExists)
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, repository.ErrDuplicate)
		case pgErr.Code == codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
