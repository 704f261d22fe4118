package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

// evalPageSize is how many samples are read per query while loading a session.
const evalPageSize = 1000

// Evaluator turns a session's persisted telemetry into a stored evaluation.
type Evaluator struct {
	store    repository.Store
	analyzer *behavior.Analyzer
	scorer   scoring.Scorer
	logger   logger.Logger
}

// NewEvaluator wires the analyzer and scorer to the store.
func NewEvaluator(store repository.Store, analyzer *behavior.Analyzer, scorer scoring.Scorer, log logger.Logger) *Evaluator {
	return &Evaluator{store: store, analyzer: analyzer, scorer: scorer, logger: log}
}

// Telemetry reads every persisted sample of a session in timestamp order.
func (e *Evaluator) Telemetry(ctx context.Context, sessionID string) ([]model.TelemetrySample, error) {
	var out []model.TelemetrySample
	for offset := 0; ; offset += evalPageSize {
		page, err := e.store.QueryTelemetry(ctx, sessionID, repository.TelemetryQuery{
			Order:  repository.Ascending,
			Limit:  evalPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, storageErr("query telemetry", err)
		}
		out = append(out, page...)
		if len(page) < evalPageSize {
			return out, nil
		}
	}
}

// Analyze runs the detectors over the session without persisting anything.
func (e *Evaluator) Analyze(ctx context.Context, sess model.Session) (behavior.Metrics, []model.TelemetrySample, error) {
	samples, err := e.Telemetry(ctx, sess.ID)
	if err != nil {
		return behavior.Metrics{}, nil, err
	}
	return e.analyzer.Analyze(sess.Environment, samples), samples, nil
}

// Evaluate analyzes, scores and upserts the evaluation of sess.
func (e *Evaluator) Evaluate(ctx context.Context, sess model.Session) (model.Evaluation, error) {
	start := time.Now()

	m, samples, err := e.Analyze(ctx, sess)
	if err != nil {
		metrics.RecordEvaluationError()
		return model.Evaluation{}, err
	}

	var span time.Duration
	if len(samples) > 1 {
		span = samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	}

	ev, err := e.scorer.Evaluate(ctx, scoring.Input{Session: sess, Metrics: m, Duration: span})
	if err != nil {
		metrics.RecordEvaluationError()
		return model.Evaluation{}, fmt.Errorf("score session %s: %w", sess.ID, err)
	}
	if err := e.store.UpsertEvaluation(ctx, ev); err != nil {
		metrics.RecordEvaluationError()
		return model.Evaluation{}, storageErr("upsert evaluation", err)
	}

	for kind, n := range m.Counts() {
		metrics.RecordViolations(kind, n)
	}
	metrics.RecordEvaluation(ev.Score, ev.Grade, float64(time.Since(start).Milliseconds()))
	e.logger.Info(ctx, "session evaluated",
		logger.String("sessionID", sess.ID),
		logger.Int("samples", m.SampleCount),
		logger.Int("score", ev.Score),
		logger.String("grade", ev.Grade),
	)
	return ev, nil
}
