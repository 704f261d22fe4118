package drivesim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Stats holds run counters.
type Stats struct {
	SessionsCreated atomic.Int64
	SamplesSent     atomic.Int64
	BatchesSent     atomic.Int64
	SessionsEnded   atomic.Int64
	Verified        atomic.Int64
	Mismatches      atomic.Int64
	Failed          atomic.Int64
	StartTime       time.Time
	Duration        time.Duration
}

// Runner executes a simulation against one service.
type Runner struct {
	cfg    *Config
	client *Client
	grades scoring.GradeScale
	log    logger.Logger
	stats  *Stats

	mu      sync.Mutex
	results []DriveResult
}

// NewRunner creates a runner. grades must match the service's scale for
// verification to hold.
func NewRunner(cfg *Config, grades scoring.GradeScale) *Runner {
	return &Runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		grades: grades,
		log:    logger.Named("drive-sim"),
		stats:  &Stats{},
	}
}

// Stats returns the live counters.
func (r *Runner) Stats() *Stats { return r.stats }

// Results returns the per-driver outcomes collected so far.
func (r *Runner) Results() []DriveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DriveResult(nil), r.results...)
}

// Run executes the complete simulation.
func Run(ctx context.Context, cfg *Config) error {
	r := NewRunner(cfg, scoring.DefaultGradeScale())
	return r.Run(ctx)
}

// Run drives every configured driver and verifies the scores.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	r.stats.StartTime = time.Now()

	r.log.Info(ctx, "starting drive simulation",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("drivers", r.cfg.Drivers),
		logger.Int("samples", r.cfg.Samples),
		logger.Int("batchSize", r.cfg.BatchSize),
		logger.Int("workers", r.cfg.Workers),
		logger.Any("seed", r.cfg.Seed))

	if err := r.client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < r.cfg.Drivers; i++ {
		g.Go(func() error {
			res, err := r.drive(gctx, i)
			if err != nil {
				r.stats.Failed.Add(1)
				r.log.Warn(gctx, "driver failed", logger.Int("driver", i), logger.Error(err))
				// A cancelled run stops every driver; other failures are counted.
				if errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			r.mu.Lock()
			r.results = append(r.results, res)
			r.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.stats.Duration = time.Since(r.stats.StartTime)

	if r.cfg.OutputFile != "" {
		if err := r.saveResults(ctx, r.cfg.OutputFile); err != nil {
			r.log.Warn(ctx, "failed to save results", logger.Error(err))
		}
	}
	r.displayFinalStats(ctx)

	switch {
	case r.stats.Failed.Load() == int64(r.cfg.Drivers):
		return ErrAllFailed
	case r.stats.Mismatches.Load() > 0:
		return fmt.Errorf("%w: %d mismatches", ErrVerification, r.stats.Mismatches.Load())
	}
	verifyProfiles(ctx, r.log, r.Results())
	return nil
}

// drive runs one driver: create, stream, end, verify.
func (r *Runner) drive(ctx context.Context, i int) (DriveResult, error) {
	profile := Profiles[i%len(Profiles)]
	env := Environments[(i/len(Profiles))%len(Environments)]
	userID := "sim-" + uuid.NewString()

	sess, err := r.client.CreateSession(ctx, CreateSession{UserID: userID, Environment: env, InputDevice: "wheel"})
	if err != nil {
		return DriveResult{}, fmt.Errorf("create session: %w", err)
	}
	r.stats.SessionsCreated.Add(1)

	gen := NewGenerator(r.cfg.Seed+uint64(i), r.cfg.SampleInterval)
	samples := gen.Generate(profile, env, r.cfg.Samples, time.Now())

	// The first half goes through the buffered path, the rest in batches.
	half := len(samples) / 2
	for _, s := range samples[:half] {
		if _, err := r.client.Ingest(ctx, sess.ID, s); err != nil {
			return DriveResult{}, fmt.Errorf("ingest: %w", err)
		}
		r.stats.SamplesSent.Add(1)
	}
	for _, batch := range lo.Chunk(samples[half:], r.cfg.BatchSize) {
		if _, err := r.client.IngestBatch(ctx, sess.ID, batch); err != nil {
			return DriveResult{}, fmt.Errorf("ingest batch: %w", err)
		}
		r.stats.BatchesSent.Add(1)
		r.stats.SamplesSent.Add(int64(len(batch)))
	}

	end, err := r.client.EndSession(ctx, sess.ID)
	if err != nil {
		return DriveResult{}, fmt.Errorf("end session: %w", err)
	}
	r.stats.SessionsEnded.Add(1)

	stored, err := r.client.Evaluation(ctx, sess.ID)
	if err != nil {
		return DriveResult{}, fmt.Errorf("fetch evaluation: %w", err)
	}
	if err := verifyEvaluation(r.grades, end.Evaluation, stored); err != nil {
		r.stats.Mismatches.Add(1)
		r.log.Error(ctx, "evaluation mismatch", logger.String("sessionID", sess.ID), logger.Error(err))
	} else {
		r.stats.Verified.Add(1)
	}

	if r.cfg.Verbose {
		r.log.Info(ctx, "driver finished",
			logger.String("sessionID", sess.ID),
			logger.String("profile", string(profile)),
			logger.String("environment", env),
			logger.Int("score", stored.Score),
			logger.String("grade", stored.Grade))
	}
	return DriveResult{
		UserID:      userID,
		SessionID:   sess.ID,
		Profile:     profile,
		Environment: env,
		Samples:     len(samples),
		Score:       stored.Score,
		Grade:       stored.Grade,
	}, nil
}

// saveResults writes the per-driver results as a JSON array.
func (r *Runner) saveResults(ctx context.Context, filename string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r.Results(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	r.log.Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

func (r *Runner) displayFinalStats(ctx context.Context) {
	var samplesPerSecond float64
	if r.stats.Duration > 0 {
		samplesPerSecond = float64(r.stats.SamplesSent.Load()) / r.stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int64("sessionsCreated", r.stats.SessionsCreated.Load()),
		logger.Int64("samplesSent", r.stats.SamplesSent.Load()),
		logger.Int64("batchesSent", r.stats.BatchesSent.Load()),
		logger.Int64("sessionsEnded", r.stats.SessionsEnded.Load()),
		logger.Int64("verified", r.stats.Verified.Load()),
		logger.Int64("mismatches", r.stats.Mismatches.Load()),
		logger.Int64("failed", r.stats.Failed.Load()),
		logger.String("duration", r.stats.Duration.String()),
		logger.Float64("samplesPerSecond", samplesPerSecond))
}
