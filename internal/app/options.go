package service

import (
	"time"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFlushSize sets how many samples a session buffers before flushing.
func WithFlushSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.flushSize = n
		}
	}
}

// WithThresholds replaces the detector thresholds.
func WithThresholds(th behavior.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = th
	}
}

// WithGradeScale replaces the grade boundaries.
func WithGradeScale(g scoring.GradeScale) Option {
	return func(s *Service) {
		s.grades = g
	}
}

// WithScorer replaces the scoring engine used for persisted evaluations.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithWorkerCount sets the number of re-evaluation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the re-evaluation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}
