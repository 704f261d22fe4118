package behavior

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/okian/drivescore/internal/domain/model"
)

// Violation kinds.
const (
	KindOverspeed          = "overspeed"
	KindSuddenBrake        = "sudden_brake"
	KindSuddenAcceleration = "sudden_acceleration"
	KindLaneViolation      = "lane_violation"
	KindCollision          = "collision"
	KindSignalViolation    = "signal_violation"
)

const (
	fullMarks  = 100.0
	percentage = 100.0
	// Speed efficiency below the optimal band is scaled by this factor.
	slowEfficiencyFactor = 1.25
	// Each percentage point above the optimal band costs this much.
	fastEfficiencyPenalty = 2.0
)

// Metrics is the analyzer verdict for one session.
type Metrics struct {
	SpeedLimit  float64 `json:"speed_limit"`
	SampleCount int     `json:"sample_count"`
	MaxSpeed    float64 `json:"max_speed"`
	AvgSpeed    float64 `json:"avg_speed"`

	OverspeedCount          int `json:"overspeed_count"`
	SuddenBrakeCount        int `json:"sudden_brake_count"`
	HarshBrakingEvents      int `json:"harsh_braking_events"`
	SuddenAccelerationCount int `json:"sudden_acceleration_count"`
	LaneViolationCount      int `json:"lane_violation_count"`
	CollisionCount          int `json:"collision_count"`
	// SignalViolationCount is reserved; no detector populates it.
	SignalViolationCount int `json:"signal_violation_count"`

	// MaxSpeedViolation is how far the fastest sample exceeded the limit, never negative.
	MaxSpeedViolation       float64 `json:"max_speed_violation"`
	SpeedEfficiency         float64 `json:"avg_speed_efficiency"`
	SteeringSmoothness      float64 `json:"steering_smoothness"`
	SmoothDrivingPercentage float64 `json:"smooth_driving_percentage"`
}

// Counts returns the violation counters keyed by kind.
func (m Metrics) Counts() map[string]int {
	return map[string]int{
		KindOverspeed:          m.OverspeedCount,
		KindSuddenBrake:        m.SuddenBrakeCount,
		KindSuddenAcceleration: m.SuddenAccelerationCount,
		KindLaneViolation:      m.LaneViolationCount,
		KindCollision:          m.CollisionCount,
		KindSignalViolation:    m.SignalViolationCount,
	}
}

// Analyzer runs every detector over a whole session.
type Analyzer struct {
	th Thresholds
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThresholds replaces the default thresholds.
func WithThresholds(th Thresholds) Option {
	return func(a *Analyzer) {
		a.th = th
	}
}

// NewAnalyzer creates an Analyzer with default thresholds unless overridden.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{th: DefaultThresholds()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Thresholds returns the active configuration.
func (a *Analyzer) Thresholds() Thresholds {
	return a.th
}

// Analyze computes metrics for a session run in env. samples need not be
// sorted; detectors that compare neighbours order them by timestamp first.
// The input slice is not modified.
func (a *Analyzer) Analyze(env model.Environment, samples []model.TelemetrySample) Metrics {
	th := a.th
	limit := th.SpeedLimit(env)

	ordered := slices.Clone(samples)
	slices.SortStableFunc(ordered, func(x, y model.TelemetrySample) int {
		return x.Timestamp.Compare(y.Timestamp)
	})

	m := Metrics{
		SpeedLimit:  limit,
		SampleCount: len(ordered),
	}
	if len(ordered) > 0 {
		speeds := lo.Map(ordered, func(s model.TelemetrySample, _ int) float64 { return s.Speed })
		m.MaxSpeed = lo.Max(speeds)
		m.AvgSpeed = lo.Sum(speeds) / float64(len(speeds))
	}

	m.OverspeedCount = lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return s.Speed > limit+th.OverspeedMargin
	})
	m.SuddenBrakeCount = lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return s.BrakeForce > th.SuddenBrake
	})
	m.HarshBrakingEvents = lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return s.BrakeForce > th.HarshBrake && s.Speed > th.HarshBrakeMinSpeed
	})
	m.LaneViolationCount = lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return math.Abs(s.LanePosition) > th.LaneViolation
	})
	m.CollisionCount = lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return s.Collision
	})
	m.SuddenAccelerationCount = a.suddenAccelerations(ordered)

	m.MaxSpeedViolation = math.Max(0, m.MaxSpeed-limit)
	m.SpeedEfficiency = a.speedEfficiency(m.AvgSpeed, limit)
	m.SteeringSmoothness = a.steeringSmoothness(ordered)
	m.SmoothDrivingPercentage = a.smoothDriving(ordered)
	return m
}

// suddenAccelerations counts throttle jumps between neighbours. The first
// sample is compared against a released throttle.
func (a *Analyzer) suddenAccelerations(ordered []model.TelemetrySample) int {
	count := 0
	prev := 0.0
	for _, s := range ordered {
		if s.ThrottleForce-prev > a.th.SuddenAcceleration {
			count++
		}
		prev = s.ThrottleForce
	}
	return count
}

// steeringSmoothness maps the mean steering change between consecutive moving
// samples onto 0..100. Fewer than two moving samples scores 100.
func (a *Analyzer) steeringSmoothness(ordered []model.TelemetrySample) float64 {
	moving := lo.Filter(ordered, func(s model.TelemetrySample, _ int) bool {
		return s.Speed > a.th.SmoothSteeringMinSpeed
	})
	if len(moving) < 2 {
		return fullMarks
	}
	total := 0.0
	for i := 1; i < len(moving); i++ {
		total += math.Abs(moving[i].SteeringAngle - moving[i-1].SteeringAngle)
	}
	mean := total / float64(len(moving)-1)
	return lo.Clamp((1-mean)*fullMarks, 0, fullMarks)
}

func (a *Analyzer) smoothDriving(ordered []model.TelemetrySample) float64 {
	if len(ordered) == 0 {
		return 0
	}
	smooth := lo.CountBy(ordered, func(s model.TelemetrySample) bool {
		return s.BrakeForce < a.th.SmoothBrakeMax &&
			s.ThrottleForce < a.th.SmoothThrottleMax &&
			math.Abs(s.SteeringAngle) < a.th.SmoothSteeringMax &&
			!s.Collision
	})
	return float64(smooth) / float64(len(ordered)) * percentage
}

// speedEfficiency rewards an average speed inside the optimal band of the limit.
func (a *Analyzer) speedEfficiency(avg, limit float64) float64 {
	if limit == 0 {
		return fullMarks
	}
	eff := avg / limit * percentage
	switch {
	case eff >= a.th.EfficiencyLow && eff <= a.th.EfficiencyHigh:
		return fullMarks
	case eff < a.th.EfficiencyLow:
		return eff * slowEfficiencyFactor
	default:
		return math.Max(0, fullMarks-(eff-a.th.EfficiencyHigh)*fastEfficiencyPenalty)
	}
}
