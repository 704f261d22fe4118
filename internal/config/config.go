// Package config defines service configuration and its loading from
// defaults, an optional YAML file and the environment.
package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogBackend selects the logger implementation: slog or zap.
	LogBackend string `koanf:"log_backend"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// RequestTimeoutMS bounds each HTTP request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// Store selects the persistence backend: memory or postgres.
	Store          string `koanf:"store"`
	DatabaseURL    string `koanf:"database_url"`
	DBMaxConns     int    `koanf:"db_max_conns"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`

	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutMS        int `koanf:"breaker_timeout_ms"`

	// BufferFlushSize is how many samples a session buffers before writing.
	BufferFlushSize     int `koanf:"buffer_flush_size"`
	ReevaluateWorkers   int `koanf:"reevaluate_workers"`
	ReevaluateQueueSize int `koanf:"reevaluate_queue_size"`

	SpeedLimitCity         float64 `koanf:"speed_limit_city"`
	SpeedLimitHighway      float64 `koanf:"speed_limit_highway"`
	OverspeedThreshold     float64 `koanf:"overspeed_threshold"`
	SuddenBrakeThreshold   float64 `koanf:"sudden_brake_threshold"`
	HarshBrakeThreshold    float64 `koanf:"harsh_brake_threshold"`
	HarshBrakeMinSpeed     float64 `koanf:"harsh_brake_min_speed"`
	SuddenAccelThreshold   float64 `koanf:"sudden_accel_threshold"`
	LaneViolationThreshold float64 `koanf:"lane_violation_threshold"`
	SmoothSteeringMinSpeed float64 `koanf:"smooth_steering_min_speed"`

	// GradeBoundaries maps a grade to its minimum score. Empty keeps the
	// stock A+ to D scale.
	GradeBoundaries map[string]int `koanf:"grade_boundaries"`
}

// New creates a Config holding the defaults.
func New() *Config {
	th := behavior.DefaultThresholds()
	return &Config{
		LogLevel:                "info",
		LogBackend:              "slog",
		Addr:                    ":9080",
		RequestTimeoutMS:        5000,
		Store:                   StoreMemory,
		DBMaxConns:              10,
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        30_000,
		BufferFlushSize:         10,
		ReevaluateWorkers:       2,
		ReevaluateQueueSize:     1024,
		SpeedLimitCity:          th.SpeedLimitCity,
		SpeedLimitHighway:       th.SpeedLimitHighway,
		OverspeedThreshold:      th.OverspeedMargin,
		SuddenBrakeThreshold:    th.SuddenBrake,
		HarshBrakeThreshold:     th.HarshBrake,
		HarshBrakeMinSpeed:      th.HarshBrakeMinSpeed,
		SuddenAccelThreshold:    th.SuddenAcceleration,
		LaneViolationThreshold:  th.LaneViolation,
		SmoothSteeringMinSpeed:  th.SmoothSteeringMinSpeed,
	}
}

// Thresholds returns the detector configuration, starting from the stock
// values for anything not exposed as a key.
func (c *Config) Thresholds() behavior.Thresholds {
	th := behavior.DefaultThresholds()
	th.SpeedLimitCity = c.SpeedLimitCity
	th.SpeedLimitHighway = c.SpeedLimitHighway
	th.OverspeedMargin = c.OverspeedThreshold
	th.SuddenBrake = c.SuddenBrakeThreshold
	th.HarshBrake = c.HarshBrakeThreshold
	th.HarshBrakeMinSpeed = c.HarshBrakeMinSpeed
	th.SuddenAcceleration = c.SuddenAccelThreshold
	th.LaneViolation = c.LaneViolationThreshold
	th.SmoothSteeringMinSpeed = c.SmoothSteeringMinSpeed
	return th
}

// GradeScale builds the configured grade scale.
func (c *Config) GradeScale() (scoring.GradeScale, error) {
	if len(c.GradeBoundaries) == 0 {
		return scoring.DefaultGradeScale(), nil
	}
	return scoring.NewGradeScale(c.GradeBoundaries)
}

// RequestTimeout is RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// BreakerTimeout is how long the store breaker stays open.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogBackend != "slog" && c.LogBackend != "zap":
		return fmt.Errorf("%w: log_backend must be slog or zap, got %q", ErrInvalidConfig, c.LogBackend)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: store must be memory or postgres, got %q", ErrInvalidConfig, c.Store)
	case c.BufferFlushSize < 1:
		return fmt.Errorf("%w: buffer_flush_size must be positive", ErrInvalidConfig)
	case c.ReevaluateWorkers < 1 || c.ReevaluateQueueSize < 1:
		return fmt.Errorf("%w: reevaluate_workers and reevaluate_queue_size must be positive", ErrInvalidConfig)
	case c.RequestTimeoutMS < 1 || c.BreakerTimeoutMS < 1 || c.BreakerFailureThreshold < 1:
		return fmt.Errorf("%w: timeouts and breaker threshold must be positive", ErrInvalidConfig)
	}
	if c.Store == StorePostgres {
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
		}
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("%w: database_url: %w", ErrInvalidConfig, err)
		}
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.GradeScale(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
