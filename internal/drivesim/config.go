// Package drivesim drives synthetic drivers against a running drivescore
// service and checks the scores it hands back.
package drivesim

import (
	"errors"
	"runtime"
	"time"
)

// Defaults for a simulation run.
const (
	DefaultBaseURL        = "http://localhost:9080"
	DefaultDrivers        = 20
	DefaultSamples        = 120
	DefaultBatchSize      = 20
	DefaultSampleInterval = 500 * time.Millisecond
	DefaultTimeout        = 30 * time.Second
)

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrVerification  = errors.New("score verification failed")
	ErrAllFailed     = errors.New("every driver failed")
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Drivers        int           // Number of synthetic drivers, one session each
	Samples        int           // Samples streamed per session
	BatchSize      int           // Samples per batch once single ingest is done
	SampleInterval time.Duration // Spacing of sample timestamps
	Workers        int           // Drivers running at once
	Timeout        time.Duration // HTTP request timeout
	Seed           uint64        // Seed for the sample generator
	OutputFile     string        // Optional JSON file for per-driver results
	Verbose        bool
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Drivers:        DefaultDrivers,
		Samples:        DefaultSamples,
		BatchSize:      DefaultBatchSize,
		SampleInterval: DefaultSampleInterval,
		Workers:        runtime.NumCPU(),
		Timeout:        DefaultTimeout,
		Seed:           uint64(time.Now().UnixNano()),
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Drivers < 1:
		return errors.Join(ErrInvalidConfig, errors.New("drivers must be positive"))
	case c.Samples < 1:
		return errors.Join(ErrInvalidConfig, errors.New("samples must be positive"))
	case c.BatchSize < 1:
		return errors.Join(ErrInvalidConfig, errors.New("batch size must be positive"))
	case c.Workers < 1:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be positive"))
	case c.SampleInterval <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("sample interval must be positive"))
	}
	return nil
}
