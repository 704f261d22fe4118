package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/model"
)

var (
	started = time.Date(2025, 10, 30, 8, 0, 0, 0, time.UTC)

	sessionCols = []string{
		"id", "user_id", "started_at", "ended_at", "environment", "vehicle_type",
		"input_device", "status", "total_distance_km", "total_time_seconds",
	}
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestInsertSessionMapsConstraintViolations(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	sess := model.Session{
		ID: "s-1", UserID: "u-1", StartedAt: started, Environment: model.EnvironmentCity,
		VehicleType: "sedan", InputDevice: model.DeviceWheel, Status: model.StatusActive,
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("s-1", "u-1", started, (*time.Time)(nil), "city", "sedan", "wheel", "active", 0.0, int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.InsertSession(context.Background(), sess); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: activeSessionIndex})
	if err := store.InsertSession(context.Background(), sess); !errors.Is(err, repository.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "sessions_pkey"})
	if err := store.InsertSession(context.Background(), sess); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateSessionUnknownID(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("missing", pgxmock.AnyArg(), "completed", 1.5, int64(90)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateSession(context.Background(), model.Session{
		ID: "missing", Status: model.StatusCompleted, TotalDistance: 1.5, TotalTime: 90,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	ended := started.Add(10 * time.Minute)

	mock.ExpectQuery(`SELECT id, user_id, started_at, ended_at`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			"s-1", "u-1", started, &ended, model.EnvironmentHighway, "truck",
			model.DeviceGamepad, model.StatusCompleted, 12.5, int64(600)))

	sess, err := store.GetSession(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Environment != model.EnvironmentHighway || sess.Status != model.StatusCompleted {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.EndedAt == nil || !sess.EndedAt.Equal(ended) || sess.TotalTime != 600 {
		t.Fatalf("unexpected totals %+v", sess)
	}

	mock.ExpectQuery(`SELECT id, user_id, started_at, ended_at`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	if _, err := store.GetSession(context.Background(), "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListUserSessionsJoinsEvaluation(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	score, grade := 91, "A"

	cols := append(append([]string{}, sessionCols...), "total_score", "grade")
	mock.ExpectQuery(`FROM sessions s\s+LEFT JOIN evaluations e`).
		WithArgs("u-1", 20, 20).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("s-2", "u-1", started.Add(time.Hour), (*time.Time)(nil), model.EnvironmentRain, "",
				model.DeviceKeyboard, model.StatusActive, 0.0, int64(0), (*int)(nil), (*string)(nil)).
			AddRow("s-1", "u-1", started, &started, model.EnvironmentCity, "",
				model.DeviceKeyboard, model.StatusCompleted, 3.2, int64(300), &score, &grade))

	rows, err := store.ListUserSessions(context.Background(), "u-1", 20, 20)
	if err != nil {
		t.Fatalf("list user sessions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Score != nil || rows[0].Grade != "" {
		t.Fatalf("expected no evaluation on active session, got %+v", rows[0])
	}
	if rows[1].Score == nil || *rows[1].Score != 91 || rows[1].Grade != "A" {
		t.Fatalf("expected evaluation headline, got %+v", rows[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTelemetryBatch(t *testing.T) {
	samples := []model.TelemetrySample{
		{SessionID: "s-1", Timestamp: started, Speed: 40, Gear: 3},
		{SessionID: "s-1", Timestamp: started.Add(time.Second), Speed: 42, Gear: 3},
	}

	t.Run("commits a complete copy", func(t *testing.T) {
		mock := newMock(t)
		store := New(mock)

		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"telemetry"}, telemetryColumns).WillReturnResult(2)
		mock.ExpectCommit()

		if err := store.InsertTelemetryBatch(context.Background(), samples); err != nil {
			t.Fatalf("insert telemetry: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("rolls back when a row is rejected", func(t *testing.T) {
		mock := newMock(t)
		store := New(mock)

		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"telemetry"}, telemetryColumns).
			WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation})
		mock.ExpectRollback()

		err := store.InsertTelemetryBatch(context.Background(), samples)
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("rolls back a short copy", func(t *testing.T) {
		mock := newMock(t)
		store := New(mock)

		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"telemetry"}, telemetryColumns).WillReturnResult(1)
		mock.ExpectRollback()

		if err := store.InsertTelemetryBatch(context.Background(), samples); err == nil {
			t.Fatal("expected an error for a partial copy")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("skips empty batches", func(t *testing.T) {
		mock := newMock(t)
		if err := New(mock).InsertTelemetryBatch(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}

func TestQueryTelemetry(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	since := started.Add(-30 * time.Second)

	mock.ExpectQuery(`FROM telemetry WHERE session_id = \$1 AND ts > \$2 ORDER BY ts DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("s-1", since, pgxmock.AnyArg(), 0).
		WillReturnRows(pgxmock.NewRows(telemetryColumns).
			AddRow("s-1", started, 55.0, 0.1, 0.0, 0.4, 4, 3100.0, -0.2, 1.0, 2.0, 0.0, false))

	rows, err := store.QueryTelemetry(context.Background(), "s-1", repository.TelemetryQuery{
		Since: since,
		Order: repository.Descending,
	})
	if err != nil {
		t.Fatalf("query telemetry: %v", err)
	}
	if len(rows) != 1 || rows[0].Speed != 55 || rows[0].Gear != 4 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	mock.ExpectQuery(`FROM telemetry WHERE session_id = \$1 ORDER BY ts ASC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("s-1", 1000, 0).
		WillReturnRows(pgxmock.NewRows(telemetryColumns))

	rows, err = store.QueryTelemetry(context.Background(), "s-1", repository.TelemetryQuery{Limit: 1000})
	if err != nil {
		t.Fatalf("query telemetry: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateTelemetry(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	last := started.Add(2 * time.Minute)
	cols := []string{"count", "min", "max", "max_speed", "avg_speed", "min_speed",
		"avg_steer", "avg_brake", "avg_throttle", "avg_lane", "collisions"}

	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE collision\)`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(120, &started, &last, 88.0, 51.5, 0.0, 0.12, 0.2, 0.5, 0.1, 2))

	agg, err := store.AggregateTelemetry(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 120 || agg.CollisionCount != 2 || agg.Elapsed() != 2*time.Minute {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE collision\)`).
		WithArgs("empty").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(0, (*time.Time)(nil), (*time.Time)(nil), 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0))

	agg, err = store.AggregateTelemetry(context.Background(), "empty")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 0 || !agg.FirstAt.IsZero() || agg.Elapsed() != 0 {
		t.Fatalf("expected zero aggregate, got %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEvaluationRoundTrip(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	at := started.Add(time.Hour)

	mock.ExpectExec(`(?s)INSERT INTO evaluations .* ON CONFLICT \(session_id\) DO UPDATE`).
		WithArgs("s-1", 1, 0, 0, 0, 1, 0, 91, "A", 61.24, 42.44, 2, 33.33, `{"recommendations":[]}`, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertEvaluation(context.Background(), model.Evaluation{
		SessionID: "s-1", OverspeedCount: 1, CollisionCount: 1, Score: 91, Grade: "A",
		MaxSpeed: 61.24, AvgSpeed: 42.44, HarshBrakingEvents: 2, SmoothDrivingPercentage: 33.33,
		Report: []byte(`{"recommendations":[]}`), EvaluatedAt: at,
	})
	if err != nil {
		t.Fatalf("upsert evaluation: %v", err)
	}

	cols := []string{"session_id", "overspeed_count", "sudden_brake_count", "sudden_acceleration_count",
		"lane_violation_count", "collision_count", "signal_violation_count", "total_score", "grade",
		"max_speed", "avg_speed", "harsh_braking_events", "smooth_driving_percentage", "report", "evaluated_at"}
	mock.ExpectQuery(`FROM evaluations WHERE session_id = \$1`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("s-1", 1, 0, 0, 0, 1, 0, 91, "A", 61.24, 42.44, 2, 33.33, `{"recommendations":[]}`, at))

	ev, err := store.GetEvaluation(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}
	if ev.Score != 91 || string(ev.Report) != `{"recommendations":[]}` || !ev.EvaluatedAt.Equal(at) {
		t.Fatalf("unexpected evaluation %+v", ev)
	}

	mock.ExpectQuery(`FROM evaluations WHERE session_id = \$1`).
		WithArgs("s-2").
		WillReturnError(pgx.ErrNoRows)
	if _, err := store.GetEvaluation(context.Background(), "s-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateUserFoldsEnvironments(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	since := started.Add(-30 * 24 * time.Hour)

	cols := []string{
		"environment", "sessions", "completed", "aborted", "total_time", "total_distance",
		"evaluations", "score_sum", "min_score", "max_score", "overspeed_sum", "collision_sum",
		"excellent", "failed",
	}
	mock.ExpectQuery(`FROM sessions s\s+LEFT JOIN evaluations e .*GROUP BY s.environment`).
		WithArgs("u-1", since, pgxmock.AnyArg(), model.FailGrade).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(model.EnvironmentCity, 3, 2, 1, int64(900), 12.5, 2, 150, 60, 90, 4, 1, 1, 0).
			AddRow(model.EnvironmentRain, 1, 1, 0, int64(300), 2.0, 1, 30, 30, 30, 0, 2, 0, 1).
			AddRow(model.EnvironmentNight, 1, 0, 0, int64(0), 0.0, 0, 0, 0, 0, 0, 0, 0, 0))

	agg, err := store.AggregateUser(context.Background(), "u-1", since)
	if err != nil {
		t.Fatalf("aggregate user: %v", err)
	}
	if agg.Sessions != 5 || agg.Completed != 3 || agg.Aborted != 1 || agg.TotalTimeSeconds != 1200 {
		t.Fatalf("unexpected session totals %+v", agg)
	}
	if agg.Evaluations != 3 || agg.ScoreSum != 180 || agg.MinScore != 30 || agg.MaxScore != 90 {
		t.Fatalf("unexpected score totals %+v", agg)
	}
	if agg.Excellent != 1 || agg.Failed != 1 || agg.CollisionSum != 3 {
		t.Fatalf("unexpected grade totals %+v", agg)
	}
	if agg.ByEnvironment[model.EnvironmentNight] != 1 || agg.ByEnvironment[model.EnvironmentCity] != 3 {
		t.Fatalf("unexpected environment counts %+v", agg.ByEnvironment)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
