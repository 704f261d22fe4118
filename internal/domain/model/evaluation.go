package model

import (
	"time"

	json "github.com/goccy/go-json"
)

// Evaluation is the persisted verdict for a session. There is at most one per
// session; re-evaluation replaces it.
type Evaluation struct {
	SessionID               string          `json:"session_id"`
	OverspeedCount          int             `json:"overspeed_count"`
	SuddenBrakeCount        int             `json:"sudden_brake_count"`
	SuddenAccelerationCount int             `json:"sudden_acceleration_count"`
	LaneViolationCount      int             `json:"lane_violation_count"`
	CollisionCount          int             `json:"collision_count"`
	SignalViolationCount    int             `json:"signal_violation_count"`
	Score                   int             `json:"total_score"`
	Grade                   string          `json:"grade"`
	MaxSpeed                float64         `json:"max_speed"`
	AvgSpeed                float64         `json:"avg_speed"`
	HarshBrakingEvents      int             `json:"harsh_braking_events"`
	SmoothDrivingPercentage float64         `json:"smooth_driving_percentage"`
	Report                  json.RawMessage `json:"report"`
	EvaluatedAt             time.Time       `json:"evaluated_at"`
}
