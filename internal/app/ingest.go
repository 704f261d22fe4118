package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/telemetry"
	"github.com/okian/drivescore/internal/domain/types"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

const defaultFlushSize = 10

// Ingest paths reported to metrics.
const (
	pathSingle = "single"
	pathBatch  = "batch"
)

// sessionBuffer holds samples accepted but not yet persisted. Its mutex
// serializes appends and flushes for one session.
type sessionBuffer struct {
	mu      sync.Mutex
	id      string
	samples []model.TelemetrySample
	// sealed rejects new samples while the session is being ended.
	sealed bool
	// retired buffers were removed from the map; holders must look again.
	retired bool
}

// Ingestor buffers telemetry per session and writes it in batches.
type Ingestor struct {
	store      repository.Store
	normalizer *telemetry.Normalizer
	flushSize  int

	mu      sync.Mutex
	buffers map[string]*sessionBuffer

	logger logger.Logger
}

// NewIngestor creates an Ingestor that flushes every flushSize samples.
func NewIngestor(store repository.Store, normalizer *telemetry.Normalizer, flushSize int, log logger.Logger) *Ingestor {
	if flushSize < 1 {
		flushSize = defaultFlushSize
	}
	return &Ingestor{
		store:      store,
		normalizer: normalizer,
		flushSize:  flushSize,
		buffers:    make(map[string]*sessionBuffer),
		logger:     log,
	}
}

// acquire returns the live buffer for id, locked.
func (in *Ingestor) acquire(id string) *sessionBuffer {
	for {
		in.mu.Lock()
		buf, ok := in.buffers[id]
		if !ok {
			buf = &sessionBuffer{id: id}
			in.buffers[id] = buf
		}
		in.mu.Unlock()

		buf.mu.Lock()
		if !buf.retired {
			return buf
		}
		buf.mu.Unlock()
	}
}

// retireIfIdle drops an empty, unsealed buffer. The caller holds buf.mu.
func (in *Ingestor) retireIfIdle(buf *sessionBuffer) {
	if len(buf.samples) > 0 || buf.sealed {
		return
	}
	buf.retired = true
	in.mu.Lock()
	if in.buffers[buf.id] == buf {
		delete(in.buffers, buf.id)
	}
	in.mu.Unlock()
}

// checkActive verifies the session accepts telemetry.
func (in *Ingestor) checkActive(ctx context.Context, buf *sessionBuffer) error {
	if buf.sealed {
		return fmt.Errorf("%w: session %s is ending", model.ErrInvalidSession, buf.id)
	}
	sess, err := in.store.GetSession(ctx, buf.id)
	if err != nil {
		return lookupErr(buf.id, model.ErrInvalidSession, err)
	}
	if sess.Status != model.StatusActive {
		return fmt.Errorf("%w: session %s is %s", model.ErrInvalidSession, buf.id, sess.Status)
	}
	return nil
}

// Ingest normalizes raw into the session's buffer and flushes synchronously
// once the buffer reaches the flush size.
func (in *Ingestor) Ingest(ctx context.Context, sessionID string, raw telemetry.Raw) (types.IngestResult, error) {
	if sessionID == "" {
		return types.IngestResult{}, invalidParam("session id is required")
	}

	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()

	if err := in.checkActive(ctx, buf); err != nil {
		in.retireIfIdle(buf)
		return types.IngestResult{}, err
	}

	buf.samples = append(buf.samples, in.normalizer.Normalize(sessionID, raw))
	metrics.RecordSamplesIngested(pathSingle, 1)
	metrics.AddSamplesBuffered(1)

	if len(buf.samples) < in.flushSize {
		return types.IngestResult{Status: types.IngestBuffered, Buffered: len(buf.samples)}, nil
	}

	n, err := in.flushLocked(ctx, buf)
	if err != nil {
		return types.IngestResult{Status: types.IngestBuffered, Buffered: len(buf.samples)}, err
	}
	return types.IngestResult{Status: types.IngestFlushed, Inserted: n}, nil
}

// IngestBatch writes raws directly in one all-or-nothing batch. It waits for
// any flush of the same session in flight.
func (in *Ingestor) IngestBatch(ctx context.Context, sessionID string, raws []telemetry.Raw) (types.IngestResult, error) {
	if sessionID == "" {
		return types.IngestResult{}, invalidParam("session id is required")
	}
	if len(raws) == 0 {
		return types.IngestResult{}, invalidParam("batch is empty")
	}

	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()
	defer in.retireIfIdle(buf)

	if err := in.checkActive(ctx, buf); err != nil {
		return types.IngestResult{}, err
	}

	samples := in.normalizer.NormalizeAll(sessionID, raws)
	start := time.Now()
	if err := in.store.InsertTelemetryBatch(ctx, samples); err != nil {
		metrics.RecordFlushFailure()
		in.logger.Error(ctx, "telemetry batch rejected",
			logger.String("sessionID", sessionID),
			logger.Int("samples", len(samples)),
			logger.Error(err),
		)
		return types.IngestResult{}, storageErr("insert telemetry batch", err)
	}
	metrics.RecordSamplesIngested(pathBatch, len(samples))
	metrics.RecordFlush(len(samples), float64(time.Since(start).Milliseconds()))
	return types.IngestResult{Status: types.IngestInserted, Inserted: len(samples)}, nil
}

// flushLocked persists the buffer. Samples are dropped only after the store
// accepted all of them. The caller holds buf.mu.
func (in *Ingestor) flushLocked(ctx context.Context, buf *sessionBuffer) (int, error) {
	n := len(buf.samples)
	if n == 0 {
		return 0, nil
	}

	start := time.Now()
	if err := in.store.InsertTelemetryBatch(ctx, slices.Clone(buf.samples)); err != nil {
		metrics.RecordFlushFailure()
		in.logger.Warn(ctx, "flush failed, samples retained",
			logger.String("sessionID", buf.id),
			logger.Int("buffered", n),
			logger.Error(err),
		)
		return 0, storageErr("flush telemetry", err)
	}

	buf.samples = nil
	metrics.AddSamplesBuffered(-n)
	metrics.RecordFlush(n, float64(time.Since(start).Milliseconds()))
	in.logger.Debug(ctx, "telemetry flushed", logger.String("sessionID", buf.id), logger.Int("samples", n))
	return n, nil
}

// Flush persists whatever the session has buffered.
func (in *Ingestor) Flush(ctx context.Context, sessionID string) (types.IngestResult, error) {
	if sessionID == "" {
		return types.IngestResult{}, invalidParam("session id is required")
	}

	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()
	defer in.retireIfIdle(buf)

	n, err := in.flushLocked(ctx, buf)
	if err != nil {
		return types.IngestResult{Status: types.IngestBuffered, Buffered: len(buf.samples)}, err
	}
	return types.IngestResult{Status: types.IngestFlushed, Inserted: n}, nil
}

// FlushAll flushes every session and joins the failures.
func (in *Ingestor) FlushAll(ctx context.Context) error {
	in.mu.Lock()
	ids := make([]string, 0, len(in.buffers))
	for id := range in.buffers {
		ids = append(ids, id)
	}
	in.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := in.Flush(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Seal flushes the session and stops it from accepting samples. On failure
// the session is left unsealed with its samples retained.
func (in *Ingestor) Seal(ctx context.Context, sessionID string) error {
	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()

	if _, err := in.flushLocked(ctx, buf); err != nil {
		return err
	}
	buf.sealed = true
	return nil
}

// Unseal lets a sealed session accept samples again.
func (in *Ingestor) Unseal(sessionID string) {
	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()
	buf.sealed = false
	in.retireIfIdle(buf)
}

// Release forgets a sealed session once it can no longer receive samples.
func (in *Ingestor) Release(sessionID string) {
	buf := in.acquire(sessionID)
	defer buf.mu.Unlock()
	if n := len(buf.samples); n > 0 {
		metrics.RecordSamplesDiscarded(n)
		metrics.AddSamplesBuffered(-n)
		buf.samples = nil
	}
	buf.sealed = false
	in.retireIfIdle(buf)
}

// Buffered returns the number of samples held for sessionID.
func (in *Ingestor) Buffered(sessionID string) int {
	in.mu.Lock()
	buf, ok := in.buffers[sessionID]
	in.mu.Unlock()
	if !ok {
		return 0
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.samples)
}

// BufferStats reports how many sessions hold buffered samples and how many.
func (in *Ingestor) BufferStats() (sessions, samples int) {
	in.mu.Lock()
	bufs := make([]*sessionBuffer, 0, len(in.buffers))
	for _, b := range in.buffers {
		bufs = append(bufs, b)
	}
	in.mu.Unlock()

	for _, b := range bufs {
		b.mu.Lock()
		if n := len(b.samples); n > 0 {
			sessions++
			samples += n
		}
		b.mu.Unlock()
	}
	return sessions, samples
}
