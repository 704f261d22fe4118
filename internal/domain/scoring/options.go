package scoring

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights replaces the penalty table.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithGradeScale replaces the grade boundaries. An empty scale is ignored.
func WithGradeScale(g GradeScale) Option {
	return func(e *Engine) {
		if len(g.bounds) > 0 {
			e.grades = g
		}
	}
}

// WithClock overrides the time source used to stamp evaluations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
