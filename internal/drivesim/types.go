package drivesim

// Sample is one telemetry reading as producers send it.
type Sample struct {
	Timestamp     string  `json:"timestamp"`
	Speed         float64 `json:"speed"`
	SteeringAngle float64 `json:"steering_angle"`
	BrakeForce    float64 `json:"brake_force"`
	ThrottleForce float64 `json:"throttle_force"`
	Gear          int     `json:"gear"`
	RPM           float64 `json:"rpm"`
	LanePosition  float64 `json:"lane_position"`
	PositionX     float64 `json:"position_x"`
	PositionY     float64 `json:"position_y"`
	PositionZ     float64 `json:"position_z"`
	Collision     bool    `json:"collision"`
}

// CreateSession is the request body of POST /sessions.
type CreateSession struct {
	UserID      string `json:"user_id"`
	Environment string `json:"environment_type"`
	VehicleType string `json:"vehicle_type,omitempty"`
	InputDevice string `json:"input_device,omitempty"`
}

// Session is the subset of the session shape the simulator reads.
type Session struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
}

// IngestAck reports what the service did with submitted samples.
type IngestAck struct {
	Status   string `json:"status"`
	Buffered int    `json:"buffered"`
	Inserted int    `json:"inserted"`
}

// Evaluation is the subset of the evaluation shape the simulator reads.
type Evaluation struct {
	SessionID string `json:"session_id"`
	Score     int    `json:"total_score"`
	Grade     string `json:"grade"`
}

// EndResult is the body of a successful POST /sessions/{id}/end.
type EndResult struct {
	Session    Session     `json:"session"`
	Evaluation *Evaluation `json:"evaluation"`
}

// DriveResult summarizes one simulated driver.
type DriveResult struct {
	UserID      string  `json:"user_id"`
	SessionID   string  `json:"session_id"`
	Profile     Profile `json:"profile"`
	Environment string  `json:"environment"`
	Samples     int     `json:"samples"`
	Score       int     `json:"score"`
	Grade       string  `json:"grade"`
}
