// Package behavior detects unsafe driving in a session's telemetry.
package behavior

import (
	"fmt"

	"github.com/okian/drivescore/internal/domain/model"
)

// Default detector thresholds.
const (
	DefaultSpeedLimitCity         = 50.0
	DefaultSpeedLimitHighway      = 120.0
	DefaultOverspeedMargin        = 10.0
	DefaultSuddenBrake            = 0.7
	DefaultHarshBrake             = 0.8
	DefaultHarshBrakeMinSpeed     = 20.0
	DefaultSuddenAcceleration     = 0.6
	DefaultLaneViolation          = 0.8
	DefaultSmoothSteeringMinSpeed = 5.0
	DefaultSmoothBrakeMax         = 0.3
	DefaultSmoothThrottleMax      = 0.8
	DefaultSmoothSteeringMax      = 0.5
	DefaultLiveBrakeMinSpeed      = 10.0
	DefaultEfficiencyLow          = 80.0
	DefaultEfficiencyHigh         = 95.0
)

// Thresholds holds every tunable detector constant.
type Thresholds struct {
	// SpeedLimitCity applies to every environment except highway.
	SpeedLimitCity    float64
	SpeedLimitHighway float64
	// OverspeedMargin is added to the limit before a sample counts as overspeed.
	OverspeedMargin float64

	SuddenBrake        float64
	HarshBrake         float64
	HarshBrakeMinSpeed float64
	SuddenAcceleration float64
	LaneViolation      float64

	// SmoothSteeringMinSpeed filters out samples taken while nearly stationary.
	SmoothSteeringMinSpeed float64
	SmoothBrakeMax         float64
	SmoothThrottleMax      float64
	SmoothSteeringMax      float64

	// LiveBrakeMinSpeed gates the live sudden-brake check only.
	LiveBrakeMinSpeed float64

	// EfficiencyLow and EfficiencyHigh bound the optimal band, in percent of the limit.
	EfficiencyLow  float64
	EfficiencyHigh float64
}

// DefaultThresholds returns the stock detector configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpeedLimitCity:         DefaultSpeedLimitCity,
		SpeedLimitHighway:      DefaultSpeedLimitHighway,
		OverspeedMargin:        DefaultOverspeedMargin,
		SuddenBrake:            DefaultSuddenBrake,
		HarshBrake:             DefaultHarshBrake,
		HarshBrakeMinSpeed:     DefaultHarshBrakeMinSpeed,
		SuddenAcceleration:     DefaultSuddenAcceleration,
		LaneViolation:          DefaultLaneViolation,
		SmoothSteeringMinSpeed: DefaultSmoothSteeringMinSpeed,
		SmoothBrakeMax:         DefaultSmoothBrakeMax,
		SmoothThrottleMax:      DefaultSmoothThrottleMax,
		SmoothSteeringMax:      DefaultSmoothSteeringMax,
		LiveBrakeMinSpeed:      DefaultLiveBrakeMinSpeed,
		EfficiencyLow:          DefaultEfficiencyLow,
		EfficiencyHigh:         DefaultEfficiencyHigh,
	}
}

// SpeedLimit returns the limit for env.
func (t Thresholds) SpeedLimit(env model.Environment) float64 {
	if env == model.EnvironmentHighway {
		return t.SpeedLimitHighway
	}
	return t.SpeedLimitCity
}

// Validate rejects configurations the detectors cannot work with.
func (t Thresholds) Validate() error {
	switch {
	case t.SpeedLimitCity < 0 || t.SpeedLimitHighway < 0:
		return fmt.Errorf("%w: speed limits must not be negative", ErrInvalidThresholds)
	case t.OverspeedMargin < 0:
		return fmt.Errorf("%w: overspeed margin must not be negative", ErrInvalidThresholds)
	case !unit(t.SuddenBrake) || !unit(t.HarshBrake) || !unit(t.SuddenAcceleration) || !unit(t.LaneViolation):
		return fmt.Errorf("%w: force and lane thresholds must be within [0,1]", ErrInvalidThresholds)
	case t.EfficiencyLow <= 0 || t.EfficiencyLow > t.EfficiencyHigh:
		return fmt.Errorf("%w: efficiency band must satisfy 0 < low <= high", ErrInvalidThresholds)
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
