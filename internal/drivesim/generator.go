package drivesim

import (
	"math"
	"math/rand/v2"
	"time"
)

// Profile selects how a synthetic driver behaves.
type Profile string

// Driver profiles.
const (
	ProfileCareful    Profile = "careful"
	ProfileAggressive Profile = "aggressive"
	ProfileReckless   Profile = "reckless"
)

// Profiles lists every profile in the order drivers are assigned them.
var Profiles = []Profile{ProfileCareful, ProfileAggressive, ProfileReckless}

// Environments lists the environments drivers rotate through.
var Environments = []string{"city", "highway", "night", "rain"}

// Posted limits used to shape generated speeds.
const (
	cityLimit    = 50.0
	highwayLimit = 120.0
)

const (
	idleRPM        = 800.0
	rpmPerThrottle = 5000.0
	kmhPerGear     = 25.0
	maxGear        = 6
	msPerKmh       = 1 / 3.6
)

// profileShape bounds what each profile generates.
type profileShape struct {
	speedFactor float64 // mean speed as a fraction of the limit
	speedSpread float64 // uniform +/- around the mean, km/h
	throttleMax float64
	brakeSpikeP float64 // chance of a hard brake per sample
	brakeSpike  float64
	steerSpread float64
	laneSpread  float64
	collisionP  float64
}

var shapes = map[Profile]profileShape{
	ProfileCareful: {
		speedFactor: 0.8, speedSpread: 3, throttleMax: 0.4,
		steerSpread: 0.1, laneSpread: 0.2,
	},
	ProfileAggressive: {
		speedFactor: 1.15, speedSpread: 8, throttleMax: 0.9,
		brakeSpikeP: 0.05, brakeSpike: 0.75, steerSpread: 0.4, laneSpread: 0.5,
	},
	ProfileReckless: {
		speedFactor: 1.5, speedSpread: 12, throttleMax: 1,
		brakeSpikeP: 0.1, brakeSpike: 0.95, steerSpread: 0.7, laneSpread: 0.95,
		collisionP: 0.02,
	},
}

// Generator produces telemetry for a driver. It is not safe for concurrent
// use; the runner gives every driver its own.
type Generator struct {
	rng      *rand.Rand
	interval time.Duration
}

// NewGenerator creates a deterministic generator for seed.
func NewGenerator(seed uint64, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), interval: interval}
}

// SpeedLimit mirrors the service's per-environment limits.
func SpeedLimit(env string) float64 {
	if env == "highway" {
		return highwayLimit
	}
	return cityLimit
}

// Generate returns n samples for profile in env starting at start.
func (g *Generator) Generate(profile Profile, env string, n int, start time.Time) []Sample {
	shape, ok := shapes[profile]
	if !ok {
		shape = shapes[ProfileCareful]
	}
	limit := SpeedLimit(env)
	dt := g.interval.Seconds()

	out := make([]Sample, n)
	var x, y float64
	for i := range out {
		speed := math.Max(0, limit*shape.speedFactor+g.spread(shape.speedSpread))
		throttle := g.rng.Float64() * shape.throttleMax
		brake := g.rng.Float64() * 0.1
		if g.rng.Float64() < shape.brakeSpikeP {
			brake = shape.brakeSpike
			throttle = 0
		}
		steer := g.spread(shape.steerSpread)

		heading := steer * math.Pi / 4
		x += speed * msPerKmh * dt * math.Cos(heading)
		y += speed * msPerKmh * dt * math.Sin(heading)

		out[i] = Sample{
			Timestamp:     start.Add(time.Duration(i) * g.interval).UTC().Format(time.RFC3339Nano),
			Speed:         round2(speed),
			SteeringAngle: round2(steer),
			BrakeForce:    round2(brake),
			ThrottleForce: round2(throttle),
			Gear:          gearFor(speed),
			RPM:           math.Round(idleRPM + throttle*rpmPerThrottle),
			LanePosition:  round2(g.spread(shape.laneSpread)),
			PositionX:     round2(x),
			PositionY:     round2(y),
			Collision:     g.rng.Float64() < shape.collisionP,
		}
	}
	return out
}

// spread returns a uniform value in [-w, w].
func (g *Generator) spread(w float64) float64 {
	return (g.rng.Float64()*2 - 1) * w
}

func gearFor(speed float64) int {
	return min(maxGear, 1+int(speed/kmhPerGear))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
