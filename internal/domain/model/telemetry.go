package model

import "time"

// TelemetrySample is one instantaneous vehicle reading.
type TelemetrySample struct {
	SessionID     string    `json:"session_id"`
	Timestamp     time.Time `json:"timestamp"`
	Speed         float64   `json:"speed"`
	SteeringAngle float64   `json:"steering_angle"`
	BrakeForce    float64   `json:"brake_force"`
	ThrottleForce float64   `json:"throttle_force"`
	Gear          int       `json:"gear"`
	RPM           float64   `json:"rpm"`
	LanePosition  float64   `json:"lane_position"`
	PositionX     float64   `json:"position_x"`
	PositionY     float64   `json:"position_y"`
	PositionZ     float64   `json:"position_z"`
	Collision     bool      `json:"collision"`
}

// TelemetryAggregate is the scalar summary of a session's persisted telemetry.
// Zero Count means every other field is zero.
type TelemetryAggregate struct {
	Count          int       `json:"total_samples"`
	FirstAt        time.Time `json:"start_time"`
	LastAt         time.Time `json:"end_time"`
	MaxSpeed       float64   `json:"max_speed"`
	AvgSpeed       float64   `json:"avg_speed"`
	MinSpeed       float64   `json:"min_speed"`
	AvgAbsSteering float64   `json:"avg_steering"`
	AvgBrake       float64   `json:"avg_brake"`
	AvgThrottle    float64   `json:"avg_throttle"`
	AvgAbsLane     float64   `json:"avg_lane_deviation"`
	CollisionCount int       `json:"collision_count"`
}

// Elapsed is the time between the first and the last sample.
func (a TelemetryAggregate) Elapsed() time.Duration {
	if a.Count == 0 {
		return 0
	}
	return a.LastAt.Sub(a.FirstAt)
}
