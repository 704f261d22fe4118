// Package scoring turns behavior metrics into a bounded score, a letter grade
// and a persisted evaluation report.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
)

// Default penalty weights.
const (
	DefaultOverspeedWeight          = 2.0
	DefaultSuddenBrakeWeight        = 1.0
	DefaultSuddenAccelerationWeight = 1.0
	DefaultLaneViolationWeight      = 3.0
	DefaultCollisionWeight          = 5.0
	DefaultSignalViolationWeight    = 4.0
	DefaultSmoothBonus              = 0.1
	DefaultMaxViolationFactor       = 0.5
	DefaultMaxViolationCap          = 10.0

	maxScoreValue = 100
)

// Weights are the per-violation penalties and bonuses applied to a base of 100.
type Weights struct {
	Overspeed          float64
	SuddenBrake        float64
	SuddenAcceleration float64
	LaneViolation      float64
	Collision          float64
	SignalViolation    float64
	// SmoothBonus is awarded per smooth-driving percentage point.
	SmoothBonus float64
	// MaxViolationFactor scales the worst speed excess, capped at MaxViolationCap.
	MaxViolationFactor float64
	MaxViolationCap    float64
}

// DefaultWeights returns the stock penalty table.
func DefaultWeights() Weights {
	return Weights{
		Overspeed:          DefaultOverspeedWeight,
		SuddenBrake:        DefaultSuddenBrakeWeight,
		SuddenAcceleration: DefaultSuddenAccelerationWeight,
		LaneViolation:      DefaultLaneViolationWeight,
		Collision:          DefaultCollisionWeight,
		SignalViolation:    DefaultSignalViolationWeight,
		SmoothBonus:        DefaultSmoothBonus,
		MaxViolationFactor: DefaultMaxViolationFactor,
		MaxViolationCap:    DefaultMaxViolationCap,
	}
}

// Input is everything needed to evaluate one ended session.
type Input struct {
	Session model.Session
	Metrics behavior.Metrics
	// Duration is the telemetry span reported in the session context.
	Duration time.Duration
}

// Result is a computed score with its grade.
type Result struct {
	Score int
	Grade string
}

// Scorer evaluates sessions.
type Scorer interface {
	// Evaluate builds the evaluation for a session, honoring ctx for cancellation.
	Evaluate(ctx context.Context, in Input) (model.Evaluation, error)
}

// Engine is the default Scorer.
type Engine struct {
	weights Weights
	grades  GradeScale
	now     func() time.Time
}

// NewEngine creates an Engine with the stock weights and grade scale.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights: DefaultWeights(),
		grades:  DefaultGradeScale(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Grades returns the active grade scale.
func (e *Engine) Grades() GradeScale {
	return e.grades
}

// Score applies the weight table to m. The result is rounded and always in [0,100].
func (e *Engine) Score(m behavior.Metrics) Result {
	w := e.weights
	raw := float64(maxScoreValue) -
		float64(m.OverspeedCount)*w.Overspeed -
		float64(m.SuddenBrakeCount)*w.SuddenBrake -
		float64(m.SuddenAccelerationCount)*w.SuddenAcceleration -
		float64(m.LaneViolationCount)*w.LaneViolation -
		float64(m.CollisionCount)*w.Collision -
		float64(m.SignalViolationCount)*w.SignalViolation +
		m.SmoothDrivingPercentage*w.SmoothBonus -
		math.Min(w.MaxViolationCap, m.MaxSpeedViolation*w.MaxViolationFactor)

	score := int(math.Round(lo.Clamp(raw, 0, maxScoreValue)))
	return Result{Score: score, Grade: e.grades.Grade(score)}
}

// InstantPenalty is the score delta a single live check would cost.
func (e *Engine) InstantPenalty(r behavior.LiveResult) float64 {
	w := e.weights
	penalty := 0.0
	if r.Overspeed {
		penalty += w.Overspeed
	}
	if r.SuddenBrake {
		penalty += w.SuddenBrake
	}
	if r.LaneViolation {
		penalty += w.LaneViolation
	}
	if r.Collision {
		penalty += w.Collision
	}
	return penalty
}

// Evaluate scores in.Metrics and assembles the persisted evaluation.
func (e *Engine) Evaluate(ctx context.Context, in Input) (model.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return model.Evaluation{}, fmt.Errorf("context cancelled: %w", err)
	}
	now := e.now().UTC()
	m := in.Metrics
	res := e.Score(m)

	report, err := json.Marshal(BuildReport(in, now))
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("%w: %w", ErrReportEncoding, err)
	}

	return model.Evaluation{
		SessionID:               in.Session.ID,
		OverspeedCount:          m.OverspeedCount,
		SuddenBrakeCount:        m.SuddenBrakeCount,
		SuddenAccelerationCount: m.SuddenAccelerationCount,
		LaneViolationCount:      m.LaneViolationCount,
		CollisionCount:          m.CollisionCount,
		SignalViolationCount:    m.SignalViolationCount,
		Score:                   res.Score,
		Grade:                   res.Grade,
		MaxSpeed:                Round2(m.MaxSpeed),
		AvgSpeed:                Round2(m.AvgSpeed),
		HarshBrakingEvents:      m.HarshBrakingEvents,
		SmoothDrivingPercentage: Round2(m.SmoothDrivingPercentage),
		Report:                  report,
		EvaluatedAt:             now,
	}, nil
}
