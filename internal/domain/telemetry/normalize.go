// Package telemetry turns loosely-typed producer payloads into clamped samples.
//
// The boundary is permissive: a missing, malformed or non-finite field takes
// its neutral default instead of rejecting the sample.
package telemetry

import (
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/okian/drivescore/internal/domain/model"
)

// Raw is one sample as delivered by the producer.
type Raw = map[string]any

// Producer keys.
const (
	KeyTimestamp     = "timestamp"
	KeySpeed         = "speed"
	KeySteeringAngle = "steering_angle"
	KeyBrakeForce    = "brake_force"
	KeyThrottleForce = "throttle_force"
	KeyGear          = "gear"
	KeyRPM           = "rpm"
	KeyLanePosition  = "lane_position"
	KeyPositionX     = "position_x"
	KeyPositionY     = "position_y"
	KeyPositionZ     = "position_z"
	KeyCollision     = "collision"
)

const (
	defaultGear = 1

	// Numeric timestamps above this are treated as milliseconds.
	unixMillisCutoff = 1e12
	// Larger values overflow int64 milliseconds.
	maxNumericTimestamp = 9e15

	// Producer clocks may run ahead of ours, but not by this much.
	maxFutureSkew = 24 * time.Hour
)

var minTimestamp = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Normalizer converts Raw payloads into model samples.
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize clamps and defaults every field of raw.
func (n *Normalizer) Normalize(sessionID string, raw Raw) model.TelemetrySample {
	ts, ok := n.timestamp(raw[KeyTimestamp])
	if !ok {
		ts = n.now()
	}
	return model.TelemetrySample{
		SessionID:     sessionID,
		Timestamp:     ts.UTC(),
		Speed:         math.Max(0, number(raw, KeySpeed, 0)),
		SteeringAngle: lo.Clamp(number(raw, KeySteeringAngle, 0), -1, 1),
		BrakeForce:    lo.Clamp(number(raw, KeyBrakeForce, 0), 0, 1),
		ThrottleForce: lo.Clamp(number(raw, KeyThrottleForce, 0), 0, 1),
		Gear:          gear(raw),
		RPM:           number(raw, KeyRPM, 0),
		LanePosition:  lo.Clamp(number(raw, KeyLanePosition, 0), -1, 1),
		PositionX:     number(raw, KeyPositionX, 0),
		PositionY:     number(raw, KeyPositionY, 0),
		PositionZ:     number(raw, KeyPositionZ, 0),
		Collision:     flag(raw[KeyCollision]),
	}
}

// NormalizeAll normalizes raws preserving their order.
func (n *Normalizer) NormalizeAll(sessionID string, raws []Raw) []model.TelemetrySample {
	return lo.Map(raws, func(r Raw, _ int) model.TelemetrySample {
		return n.Normalize(sessionID, r)
	})
}

func number(raw Raw, key string, def float64) float64 {
	v, ok := toFloat(raw[key])
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// gear keeps the value inside the int32 column range.
func gear(raw Raw) int {
	return int(lo.Clamp(math.Trunc(number(raw, KeyGear, defaultGear)), math.MinInt32, math.MaxInt32))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		v = strings.TrimSpace(x)
	}
	f, err := cast.ToFloat64E(v)
	if err == nil {
		return f, true
	}
	if n, ok := v.(interface{ Float64() (float64, error) }); ok {
		f, err = n.Float64()
		return f, err == nil
	}
	return 0, false
}

func flag(v any) bool {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(v)
	if err == nil {
		return b
	}
	f, ok := toFloat(v)
	return ok && f != 0
}

// timestamp reads RFC3339, "2006-01-02 15:04:05" or unix seconds/milliseconds.
// Anything outside [minTimestamp, now+maxFutureSkew] is rejected.
func (n *Normalizer) timestamp(v any) (time.Time, bool) {
	var ts time.Time
	switch x := v.(type) {
	case nil, bool:
		return time.Time{}, false
	case string:
		t, err := cast.ToTimeE(strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, false
		}
		ts = t
	default:
		f, ok := toFloat(v)
		if !ok || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) || f > maxNumericTimestamp {
			return time.Time{}, false
		}
		if f >= unixMillisCutoff {
			ts = time.UnixMilli(int64(f))
		} else {
			sec, frac := math.Modf(f)
			ts = time.Unix(int64(sec), int64(frac*float64(time.Second)))
		}
	}
	if ts.Before(minTimestamp) || ts.After(n.now().Add(maxFutureSkew)) {
		return time.Time{}, false
	}
	return ts, true
}
