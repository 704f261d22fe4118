package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
)

// Recommendation triggers.
const (
	recommendOverspeedAbove   = 5
	recommendSuddenBrakeAbove = 3
	recommendLaneAbove        = 2
	recommendCollisionAbove   = 0
	recommendSmoothnessBelow  = 70.0
)

// Recommendation texts, in the order they are emitted.
const (
	RecommendSpeed     = "Try to keep your speed within the posted limit."
	RecommendBraking   = "Brake progressively instead of stamping on the pedal."
	RecommendLane      = "Keep the vehicle centred in its lane."
	RecommendCollision = "Take more care to avoid collisions."
	RecommendSteering  = "Steer smoothly and continuously."
	RecommendKeepUp    = "Excellent driving! Keep it up."
)

// Report is the nested breakdown stored with an evaluation.
type Report struct {
	SessionInfo      SessionInfo      `json:"session_info"`
	SpeedAnalysis    SpeedAnalysis    `json:"speed_analysis"`
	BehaviorAnalysis BehaviorAnalysis `json:"behavior_analysis"`
	Recommendations  []string         `json:"recommendations"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// SessionInfo is the session context of a report.
type SessionInfo struct {
	Environment model.Environment `json:"environment"`
	VehicleType string            `json:"vehicle_type"`
	InputDevice model.InputDevice `json:"input_device"`
	Duration    int64             `json:"duration"`
}

// SpeedAnalysis summarizes speed behavior.
type SpeedAnalysis struct {
	MaxSpeed           float64 `json:"max_speed"`
	AvgSpeed           float64 `json:"avg_speed"`
	SpeedLimit         float64 `json:"speed_limit"`
	OverspeedIncidents int     `json:"overspeed_incidents"`
	SpeedEfficiency    float64 `json:"speed_efficiency"`
}

// BehaviorAnalysis summarizes control inputs.
type BehaviorAnalysis struct {
	SuddenBraking           int     `json:"sudden_braking"`
	HarshBraking            int     `json:"harsh_braking"`
	SuddenAcceleration      int     `json:"sudden_acceleration"`
	LaneViolations          int     `json:"lane_violations"`
	Collisions              int     `json:"collisions"`
	SteeringSmoothness      float64 `json:"steering_smoothness"`
	SmoothDrivingPercentage float64 `json:"smooth_driving_percentage"`
}

// BuildReport assembles the report for in, stamped with now.
func BuildReport(in Input, now time.Time) Report {
	m := in.Metrics
	return Report{
		SessionInfo: SessionInfo{
			Environment: in.Session.Environment,
			VehicleType: in.Session.VehicleType,
			InputDevice: in.Session.InputDevice,
			Duration:    int64(in.Duration.Seconds()),
		},
		SpeedAnalysis: SpeedAnalysis{
			MaxSpeed:           Round2(m.MaxSpeed),
			AvgSpeed:           Round2(m.AvgSpeed),
			SpeedLimit:         m.SpeedLimit,
			OverspeedIncidents: m.OverspeedCount,
			SpeedEfficiency:    Round2(m.SpeedEfficiency),
		},
		BehaviorAnalysis: BehaviorAnalysis{
			SuddenBraking:           m.SuddenBrakeCount,
			HarshBraking:            m.HarshBrakingEvents,
			SuddenAcceleration:      m.SuddenAccelerationCount,
			LaneViolations:          m.LaneViolationCount,
			Collisions:              m.CollisionCount,
			SteeringSmoothness:      Round2(m.SteeringSmoothness),
			SmoothDrivingPercentage: Round2(m.SmoothDrivingPercentage),
		},
		Recommendations: Recommendations(m),
		GeneratedAt:     now,
	}
}

// Recommendations lists advice for m. Every applicable rule fires in a fixed
// order; a clean session gets a single positive message.
func Recommendations(m behavior.Metrics) []string {
	var out []string
	if m.OverspeedCount > recommendOverspeedAbove {
		out = append(out, RecommendSpeed)
	}
	if m.SuddenBrakeCount > recommendSuddenBrakeAbove {
		out = append(out, RecommendBraking)
	}
	if m.LaneViolationCount > recommendLaneAbove {
		out = append(out, RecommendLane)
	}
	if m.CollisionCount > recommendCollisionAbove {
		out = append(out, RecommendCollision)
	}
	if m.SteeringSmoothness < recommendSmoothnessBelow {
		out = append(out, RecommendSteering)
	}
	if len(out) == 0 {
		out = append(out, RecommendKeepUp)
	}
	return out
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
