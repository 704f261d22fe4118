// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Environment is the simulated driving scenario.
type Environment string

const (
	EnvironmentCity    Environment = "city"
	EnvironmentHighway Environment = "highway"
	EnvironmentNight   Environment = "night"
	EnvironmentRain    Environment = "rain"
)

// Environments lists every accepted environment.
var Environments = []Environment{EnvironmentCity, EnvironmentHighway, EnvironmentNight, EnvironmentRain}

// ParseEnvironment validates s against the closed environment set.
func ParseEnvironment(s string) (Environment, error) {
	for _, e := range Environments {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: unknown environment %q", ErrInvalidParameter, s)
}

// InputDevice is the controller used by the driver.
type InputDevice string

const (
	DeviceKeyboard InputDevice = "keyboard"
	DeviceGamepad  InputDevice = "gamepad"
	DeviceWheel    InputDevice = "wheel"
)

// InputDevices lists every accepted input device.
var InputDevices = []InputDevice{DeviceKeyboard, DeviceGamepad, DeviceWheel}

// ParseInputDevice validates s against the closed device set.
func ParseInputDevice(s string) (InputDevice, error) {
	for _, d := range InputDevices {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown input device %q", ErrInvalidParameter, s)
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// ParseEndStatus validates a requested terminal status. Empty means completed.
func ParseEndStatus(s string) (Status, error) {
	switch Status(s) {
	case "":
		return StatusCompleted, nil
	case StatusCompleted, StatusAborted:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown end status %q", ErrInvalidParameter, s)
	}
}

// Session represents one simulated drive.
type Session struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       *time.Time  `json:"ended_at,omitempty"`
	Environment   Environment `json:"environment"`
	VehicleType   string      `json:"vehicle_type"`
	InputDevice   InputDevice `json:"input_device"`
	Status        Status      `json:"status"`
	TotalDistance float64     `json:"total_distance_km"`
	TotalTime     int64       `json:"total_time_seconds"`
}

// SessionStats are the aggregates written to a session when it ends.
type SessionStats struct {
	SampleCount   int     `json:"sample_count"`
	MaxSpeed      float64 `json:"max_speed"`
	AvgSpeed      float64 `json:"avg_speed"`
	TotalTime     int64   `json:"total_time_seconds"`
	TotalDistance float64 `json:"total_distance_km"`
}
