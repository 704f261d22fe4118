//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/adapters/repository/migrate"
	"github.com/okian/drivescore/internal/adapters/repository/postgres"
	"github.com/okian/drivescore/internal/domain/model"
)

type containerOption func(req *testcontainers.ContainerRequest)

func withInitialDatabase(user, password, dbName string) containerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.Env["POSTGRES_USER"] = user
		req.Env["POSTGRES_PASSWORD"] = password
		req.Env["POSTGRES_DB"] = dbName
	}
}

func withWaitStrategy(strategies ...wait.Strategy) containerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.WaitingFor = wait.ForAll(strategies...).WithDeadline(1 * time.Minute)
	}
}

func setupPostgres(ctx context.Context, opts ...containerOption) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		Env:          map[string]string{},
		ExposedPorts: []string{"5432/tcp"},
		Cmd:          []string{"postgres", "-c", "fsync=off"},
	}
	for _, opt := range opts {
		opt(&req)
	}
	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := setupPostgres(ctx,
		withInitialDatabase("postgres", "password", "drivescore"),
		withWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dbURL := fmt.Sprintf("postgres://postgres:password@%s:%s/drivescore?sslmode=disable", host, port.Port())

	if err := migrate.Up(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := postgres.Connect(ctx, dbURL, postgres.WithMaxConns(4))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := postgres.New(pool)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAgainstPostgres(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	start := time.Date(2025, 10, 30, 8, 0, 0, 0, time.UTC)

	sess := model.Session{
		ID: "it-1", UserID: "driver", StartedAt: start, Environment: model.EnvironmentHighway,
		VehicleType: "sedan", InputDevice: model.DeviceWheel, Status: model.StatusActive,
	}
	if err := store.InsertSession(ctx, sess); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	second := sess
	second.ID = "it-2"
	if err := store.InsertSession(ctx, second); !errors.Is(err, repository.ErrActiveSessionExists) {
		t.Fatalf("expected the partial unique index to reject a second active session, got %v", err)
	}

	batch := []model.TelemetrySample{
		{SessionID: "it-1", Timestamp: start, Speed: 100, Gear: 5},
		{SessionID: "it-1", Timestamp: start.Add(10 * time.Second), Speed: 131, Gear: 6, Collision: true},
	}
	if err := store.InsertTelemetryBatch(ctx, batch); err != nil {
		t.Fatalf("insert telemetry: %v", err)
	}

	bad := []model.TelemetrySample{
		{SessionID: "it-1", Timestamp: start.Add(20 * time.Second)},
		{SessionID: "ghost", Timestamp: start.Add(21 * time.Second)},
	}
	if err := store.InsertTelemetryBatch(ctx, bad); err == nil {
		t.Fatal("expected a batch with an unknown session to fail")
	}

	rows, err := store.QueryTelemetry(ctx, "it-1", repository.TelemetryQuery{Limit: 1000})
	if err != nil {
		t.Fatalf("query telemetry: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected the failed batch to leave no rows behind, got %d rows", len(rows))
	}

	agg, err := store.AggregateTelemetry(ctx, "it-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 2 || agg.MaxSpeed != 131 || agg.CollisionCount != 1 || agg.Elapsed() != 10*time.Second {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	ended := start.Add(time.Minute)
	sess.Status = model.StatusCompleted
	sess.EndedAt = &ended
	sess.TotalTime = 10
	if err := store.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("update session: %v", err)
	}

	for _, score := range []int{70, 88} {
		err := store.UpsertEvaluation(ctx, model.Evaluation{
			SessionID: "it-1", Score: score, Grade: "B", Report: []byte(`{"ok":true}`), EvaluatedAt: ended,
		})
		if err != nil {
			t.Fatalf("upsert evaluation: %v", err)
		}
	}
	ev, err := store.GetEvaluation(ctx, "it-1")
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}
	if ev.Score != 88 {
		t.Fatalf("expected the second evaluation to win, got %d", ev.Score)
	}

	list, err := store.ListUserSessions(ctx, "driver", 10, 0)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list) != 1 || list[0].Score == nil || *list[0].Score != 88 {
		t.Fatalf("unexpected session list %+v", list)
	}
}
