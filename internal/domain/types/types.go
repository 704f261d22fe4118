// Package types contains read shapes shared by the service and its adapters.
package types

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/okian/drivescore/internal/domain/model"
)

// Ingest outcomes reported to producers.
const (
	IngestBuffered = "buffered"
	IngestFlushed  = "flushed"
	IngestInserted = "inserted"
)

// IngestResult reports what happened to accepted telemetry.
type IngestResult struct {
	Status   string `json:"status"`
	Buffered int    `json:"buffered"`
	Inserted int    `json:"inserted"`
}

// SessionSummary is a session row with its evaluation headline when one exists.
type SessionSummary struct {
	model.Session
	Score *int   `json:"total_score,omitempty"`
	Grade string `json:"grade,omitempty"`
}

// TelemetryStats extends the raw aggregate with derived rates.
type TelemetryStats struct {
	model.TelemetryAggregate
	DurationSeconds  int64   `json:"session_duration"`
	SamplesPerSecond float64 `json:"data_points_per_second"`
}

// NewTelemetryStats derives duration and sample rate from an aggregate.
func NewTelemetryStats(agg model.TelemetryAggregate) TelemetryStats {
	out := TelemetryStats{TelemetryAggregate: agg}
	out.DurationSeconds = int64(agg.Elapsed().Seconds())
	if out.DurationSeconds > 0 {
		out.SamplesPerSecond = float64(agg.Count) / float64(out.DurationSeconds)
	}
	return out
}

// UserStats summarizes a user's driving over the last Days days.
type UserStats struct {
	UserID string    `json:"user_id"`
	Days   int       `json:"days"`
	Since  time.Time `json:"since"`

	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	AbortedSessions   int     `json:"aborted_sessions"`
	TotalDrivingTime  int64   `json:"total_driving_time"`
	TotalDistance     float64 `json:"total_distance"`

	TotalEvaluations int     `json:"total_evaluations"`
	AvgScore         float64 `json:"avg_score"`
	MinScore         *int    `json:"min_score"`
	MaxScore         *int    `json:"max_score"`
	AvgOverspeed     float64 `json:"avg_overspeed"`
	AvgCollisions    float64 `json:"avg_collisions"`
	ExcellentCount   int     `json:"excellent_count"`
	FailCount        int     `json:"fail_count"`

	PopularEnvironment    model.Environment         `json:"popular_environment,omitempty"`
	SessionsByEnvironment map[model.Environment]int `json:"sessions_by_environment"`
}

// NewUserStats derives averages and the most driven environment from agg.
// Ties between environments go to the alphabetically first.
func NewUserStats(userID string, days int, since time.Time, agg model.UserAggregate) UserStats {
	out := UserStats{
		UserID:                userID,
		Days:                  days,
		Since:                 since,
		TotalSessions:         agg.Sessions,
		CompletedSessions:     agg.Completed,
		AbortedSessions:       agg.Aborted,
		TotalDrivingTime:      agg.TotalTimeSeconds,
		TotalDistance:         round2(agg.TotalDistanceKm),
		TotalEvaluations:      agg.Evaluations,
		ExcellentCount:        agg.Excellent,
		FailCount:             agg.Failed,
		SessionsByEnvironment: map[model.Environment]int{},
	}
	for env, n := range agg.ByEnvironment {
		out.SessionsByEnvironment[env] = n
	}
	if agg.Evaluations > 0 {
		n := float64(agg.Evaluations)
		minScore, maxScore := agg.MinScore, agg.MaxScore
		out.MinScore, out.MaxScore = &minScore, &maxScore
		out.AvgScore = round2(float64(agg.ScoreSum) / n)
		out.AvgOverspeed = round2(float64(agg.OverspeedSum) / n)
		out.AvgCollisions = round2(float64(agg.CollisionSum) / n)
	}
	envs := lo.Keys(out.SessionsByEnvironment)
	slices.Sort(envs)
	best := 0
	for _, env := range envs {
		if n := out.SessionsByEnvironment[env]; n > best {
			best, out.PopularEnvironment = n, env
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
