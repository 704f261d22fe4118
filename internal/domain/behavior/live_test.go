package behavior_test

import (
	"testing"

	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLiveCheck(t *testing.T) {
	a := behavior.NewAnalyzer()

	Convey("Given a calm sample", t, func() {
		r := a.Check(model.EnvironmentCity, model.TelemetrySample{Speed: 45, BrakeForce: 0.2})
		So(r.Clean(), ShouldBeTrue)
		So(r.Violations, ShouldBeEmpty)
		So(r.SpeedLimit, ShouldEqual, 50)
	})

	Convey("Given a sample breaking every rule", t, func() {
		r := a.Check(model.EnvironmentCity, model.TelemetrySample{
			Speed:        75,
			BrakeForce:   0.9,
			LanePosition: -0.95,
			Collision:    true,
		})

		Convey("Then every violation is reported with its magnitude", func() {
			So(r.Violations, ShouldResemble, []string{
				behavior.KindOverspeed,
				behavior.KindSuddenBrake,
				behavior.KindLaneViolation,
				behavior.KindCollision,
			})
			So(r.SpeedViolation, ShouldEqual, 25)
			So(r.LaneDeviation, ShouldEqual, 0.95)
		})
	})

	Convey("Given hard braking at walking pace", t, func() {
		r := a.Check(model.EnvironmentCity, model.TelemetrySample{Speed: 10, BrakeForce: 1})

		Convey("Then the live brake check stays quiet", func() {
			So(r.SuddenBrake, ShouldBeFalse)
		})
	})

	Convey("Given a highway sample just over the margin", t, func() {
		r := a.Check(model.EnvironmentHighway, model.TelemetrySample{Speed: 130.5})
		So(r.Overspeed, ShouldBeTrue)
		So(r.SpeedViolation, ShouldEqual, 10.5)
	})
}
