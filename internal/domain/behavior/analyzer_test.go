package behavior_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, 10, 30, 9, 0, 0, 0, time.UTC)

func at(sec int, s model.TelemetrySample) model.TelemetrySample {
	s.Timestamp = t0.Add(time.Duration(sec) * time.Second)
	return s
}

func TestAnalyzeDetectors(t *testing.T) {
	a := behavior.NewAnalyzer()

	Convey("Given a highway session around the overspeed boundary", t, func() {
		samples := []model.TelemetrySample{
			at(0, model.TelemetrySample{Speed: 130}),
			at(1, model.TelemetrySample{Speed: 131}),
		}
		m := a.Analyze(model.EnvironmentHighway, samples)

		Convey("Then 130 is tolerated and 131 is counted", func() {
			So(m.SpeedLimit, ShouldEqual, 120)
			So(m.OverspeedCount, ShouldEqual, 1)
			So(m.MaxSpeed, ShouldEqual, 131)
			So(m.MaxSpeedViolation, ShouldEqual, 11)
		})
	})

	Convey("Given a session without telemetry", t, func() {
		m := a.Analyze(model.EnvironmentCity, nil)

		Convey("Then every metric takes its empty value", func() {
			So(m.SampleCount, ShouldEqual, 0)
			So(m.AvgSpeed, ShouldEqual, 0)
			So(m.MaxSpeed, ShouldEqual, 0)
			So(m.SmoothDrivingPercentage, ShouldEqual, 0)
			So(m.SteeringSmoothness, ShouldEqual, 100)
			So(m.MaxSpeedViolation, ShouldEqual, 0)
		})
	})

	Convey("Given braking samples", t, func() {
		samples := []model.TelemetrySample{
			at(0, model.TelemetrySample{Speed: 30, BrakeForce: 0.75}),
			at(1, model.TelemetrySample{Speed: 30, BrakeForce: 0.9}),
			at(2, model.TelemetrySample{Speed: 15, BrakeForce: 0.9}),
			at(3, model.TelemetrySample{Speed: 30, BrakeForce: 0.7}),
		}
		m := a.Analyze(model.EnvironmentCity, samples)

		Convey("Then sudden and harsh braking are counted independently", func() {
			So(m.SuddenBrakeCount, ShouldEqual, 3)
			So(m.HarshBrakingEvents, ShouldEqual, 1)
		})
	})

	Convey("Given throttle jumps delivered out of order", t, func() {
		samples := []model.TelemetrySample{
			at(2, model.TelemetrySample{ThrottleForce: 0.1}),
			at(0, model.TelemetrySample{ThrottleForce: 0.7}),
			at(3, model.TelemetrySample{ThrottleForce: 0.8}),
			at(1, model.TelemetrySample{ThrottleForce: 0.65}),
		}
		m := a.Analyze(model.EnvironmentCity, samples)

		Convey("Then the first sample compares against a released throttle and order follows timestamps", func() {
			// 0 -> 0.7 counts, 0.7 -> 0.65 no, 0.65 -> 0.1 no, 0.1 -> 0.8 counts.
			So(m.SuddenAccelerationCount, ShouldEqual, 2)
		})
	})

	Convey("Given lane drift and a collision", t, func() {
		samples := []model.TelemetrySample{
			at(0, model.TelemetrySample{LanePosition: -0.85}),
			at(1, model.TelemetrySample{LanePosition: 0.8}),
			at(2, model.TelemetrySample{Collision: true}),
		}
		m := a.Analyze(model.EnvironmentRain, samples)

		So(m.LaneViolationCount, ShouldEqual, 1)
		So(m.CollisionCount, ShouldEqual, 1)
		So(m.SignalViolationCount, ShouldEqual, 0)
		So(m.Counts()[behavior.KindCollision], ShouldEqual, 1)
	})
}

func TestAnalyzeSmoothness(t *testing.T) {
	a := behavior.NewAnalyzer()

	Convey("Given steering while moving and while parked", t, func() {
		samples := []model.TelemetrySample{
			at(0, model.TelemetrySample{Speed: 20, SteeringAngle: 0}),
			at(1, model.TelemetrySample{Speed: 2, SteeringAngle: 1}),
			at(2, model.TelemetrySample{Speed: 20, SteeringAngle: 0.2}),
			at(3, model.TelemetrySample{Speed: 20, SteeringAngle: 0.4}),
		}
		m := a.Analyze(model.EnvironmentCity, samples)

		Convey("Then parked samples are ignored", func() {
			// Moving deltas: 0.2 and 0.2, mean 0.2.
			So(m.SteeringSmoothness, ShouldAlmostEqual, 80, 1e-9)
		})
	})

	Convey("Given a single moving sample", t, func() {
		m := a.Analyze(model.EnvironmentCity, []model.TelemetrySample{at(0, model.TelemetrySample{Speed: 40, SteeringAngle: 0.9})})
		So(m.SteeringSmoothness, ShouldEqual, 100)
	})

	Convey("Given a mix of calm and busy samples", t, func() {
		samples := []model.TelemetrySample{
			at(0, model.TelemetrySample{BrakeForce: 0.1, ThrottleForce: 0.3}),
			at(1, model.TelemetrySample{BrakeForce: 0.3}),
			at(2, model.TelemetrySample{ThrottleForce: 0.9}),
			at(3, model.TelemetrySample{SteeringAngle: -0.2, Collision: true}),
		}
		m := a.Analyze(model.EnvironmentCity, samples)

		Convey("Then only the calm sample counts as smooth", func() {
			So(m.SmoothDrivingPercentage, ShouldEqual, 25)
		})
	})
}

func TestSpeedEfficiency(t *testing.T) {
	a := behavior.NewAnalyzer()
	run := func(speed float64) float64 {
		return a.Analyze(model.EnvironmentCity, []model.TelemetrySample{at(0, model.TelemetrySample{Speed: speed})}).SpeedEfficiency
	}

	Convey("Given city sessions at steady speeds", t, func() {
		Convey("Inside the optimal band scores full marks", func() {
			So(run(45), ShouldEqual, 100)
			So(run(44), ShouldEqual, 100)
		})
		Convey("Below the band is scaled up", func() {
			So(run(20), ShouldAlmostEqual, 50, 1e-9)
		})
		Convey("Above the band loses two points per percent", func() {
			So(run(50), ShouldAlmostEqual, 90, 1e-9)
			So(run(200), ShouldEqual, 0)
		})
	})

	Convey("Given a zero speed limit", t, func() {
		th := behavior.DefaultThresholds()
		th.SpeedLimitCity = 0
		z := behavior.NewAnalyzer(behavior.WithThresholds(th))
		m := z.Analyze(model.EnvironmentCity, []model.TelemetrySample{at(0, model.TelemetrySample{Speed: 10})})
		So(m.SpeedEfficiency, ShouldEqual, 100)
	})
}

func TestThresholds(t *testing.T) {
	Convey("Given thresholds", t, func() {
		th := behavior.DefaultThresholds()

		Convey("Defaults validate", func() {
			So(th.Validate(), ShouldBeNil)
		})

		Convey("Night and rain use the city limit", func() {
			So(th.SpeedLimit(model.EnvironmentNight), ShouldEqual, 50)
			So(th.SpeedLimit(model.EnvironmentRain), ShouldEqual, 50)
			So(th.SpeedLimit(model.EnvironmentHighway), ShouldEqual, 120)
		})

		Convey("Out of range forces are rejected", func() {
			th.SuddenBrake = 1.5
			So(errors.Is(th.Validate(), behavior.ErrInvalidThresholds), ShouldBeTrue)
		})

		Convey("An inverted efficiency band is rejected", func() {
			th.EfficiencyLow = 99
			So(errors.Is(th.Validate(), behavior.ErrInvalidThresholds), ShouldBeTrue)
		})

		Convey("A configured overspeed margin moves the boundary", func() {
			th.OverspeedMargin = 0
			a := behavior.NewAnalyzer(behavior.WithThresholds(th))
			m := a.Analyze(model.EnvironmentCity, []model.TelemetrySample{at(0, model.TelemetrySample{Speed: 51})})
			So(m.OverspeedCount, ShouldEqual, 1)
			So(a.Thresholds().OverspeedMargin, ShouldEqual, 0)
		})
	})
}
