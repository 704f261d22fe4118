package behavior

import (
	"math"

	"github.com/okian/drivescore/internal/domain/model"
)

// LiveResult is the verdict for a single sample checked in real time.
type LiveResult struct {
	SpeedLimit     float64  `json:"speed_limit"`
	Overspeed      bool     `json:"overspeed"`
	SpeedViolation float64  `json:"speed_violation,omitempty"`
	SuddenBrake    bool     `json:"sudden_brake"`
	LaneViolation  bool     `json:"lane_violation"`
	LaneDeviation  float64  `json:"lane_deviation,omitempty"`
	Collision      bool     `json:"collision"`
	Violations     []string `json:"violations"`
}

// Clean reports whether the sample triggered nothing.
func (r LiveResult) Clean() bool {
	return len(r.Violations) == 0
}

// Check tests one sample against the shared thresholds. It keeps no state.
func (a *Analyzer) Check(env model.Environment, s model.TelemetrySample) LiveResult {
	th := a.th
	limit := th.SpeedLimit(env)
	r := LiveResult{SpeedLimit: limit, Violations: []string{}}

	if s.Speed > limit+th.OverspeedMargin {
		r.Overspeed = true
		r.SpeedViolation = s.Speed - limit
		r.Violations = append(r.Violations, KindOverspeed)
	}
	if s.BrakeForce > th.SuddenBrake && s.Speed > th.LiveBrakeMinSpeed {
		r.SuddenBrake = true
		r.Violations = append(r.Violations, KindSuddenBrake)
	}
	if lane := math.Abs(s.LanePosition); lane > th.LaneViolation {
		r.LaneViolation = true
		r.LaneDeviation = lane
		r.Violations = append(r.Violations, KindLaneViolation)
	}
	if s.Collision {
		r.Collision = true
		r.Violations = append(r.Violations, KindCollision)
	}
	return r
}
