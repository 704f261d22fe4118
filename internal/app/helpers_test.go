package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/drivescore/internal/adapters/repository"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/telemetry"
	"github.com/okian/drivescore/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errDiskFull = errors.New("disk full")

// faultyStore fails selected operations on demand.
type faultyStore struct {
	*repository.MemoryStore
	failInsert    atomic.Bool
	failAggregate atomic.Bool
	failUpsert    atomic.Bool
	upserts       atomic.Int64
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: repository.NewMemoryStore()}
}

func (f *faultyStore) InsertTelemetryBatch(ctx context.Context, samples []model.TelemetrySample) error {
	if f.failInsert.Load() {
		return errDiskFull
	}
	return f.MemoryStore.InsertTelemetryBatch(ctx, samples)
}

func (f *faultyStore) AggregateTelemetry(ctx context.Context, id string) (model.TelemetryAggregate, error) {
	if f.failAggregate.Load() {
		return model.TelemetryAggregate{}, errDiskFull
	}
	return f.MemoryStore.AggregateTelemetry(ctx, id)
}

func (f *faultyStore) UpsertEvaluation(ctx context.Context, e model.Evaluation) error {
	if f.failUpsert.Load() {
		return errDiskFull
	}
	f.upserts.Add(1)
	return f.MemoryStore.UpsertEvaluation(ctx, e)
}

var baseTime = time.Date(2025, 10, 30, 8, 0, 0, 0, time.UTC)

// fixedClock returns baseTime plus whatever has been added with advance.
type fixedClock struct {
	offset atomic.Int64
}

func (c *fixedClock) now() time.Time {
	return baseTime.Add(time.Duration(c.offset.Load()))
}

func (c *fixedClock) advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("session-%d", n.Add(1))
	}
}

func newService(store repository.Store, clock *fixedClock, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithClock(clock.now),
		service.WithIDGenerator(sequentialIDs()),
		service.WithWorkerCount(1),
	}
	return service.New(store, append(base, opts...)...)
}

// sample builds a raw payload at baseTime+offset.
func sample(offset time.Duration, fields map[string]any) telemetry.Raw {
	raw := telemetry.Raw{telemetry.KeyTimestamp: baseTime.Add(offset).Format(time.RFC3339Nano)}
	for k, v := range fields {
		raw[k] = v
	}
	return raw
}

func cruise(n int, speed float64) []telemetry.Raw {
	out := make([]telemetry.Raw, n)
	for i := range out {
		out[i] = sample(time.Duration(i)*time.Second, map[string]any{telemetry.KeySpeed: speed, telemetry.KeyThrottleForce: 0.3})
	}
	return out
}
