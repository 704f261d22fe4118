package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then every series registers without collision", func() {
				So(manager, ShouldNotBeNil)
				manager.flushesTotal.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names carry the namespace and prefix", func() {
				manager.flushesTotal.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_x_telemetry_flushes_total")
			})

			Convey("Then every series carries the custom labels", func() {
				manager.flushesTotal.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				for _, f := range families {
					labels := map[string]string{}
					for _, l := range f.GetMetric()[0].GetLabel() {
						labels[l.GetName()] = l.GetValue()
					}
					So(labels["env"], ShouldEqual, "test")
				}
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording a flush", func() {
			before := testutil.ToFloat64(globalManager.flushesTotal)
			RecordFlush(10, 1.5)

			Convey("Then the flush counter moves by one", func() {
				So(testutil.ToFloat64(globalManager.flushesTotal), ShouldEqual, before+1)
			})
		})

		Convey("When recording session lifecycle", func() {
			before := testutil.ToFloat64(globalManager.activeSessions)
			RecordSessionStarted("city")
			RecordSessionEnded("completed")

			Convey("Then the active gauge returns to its prior value", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, before)
			})
		})

		Convey("When recording zero violations", func() {
			So(func() { RecordViolations("collision", 0) }, ShouldNotPanic)
		})

		Convey("Then the remaining recorders do not panic", func() {
			So(func() {
				RecordSamplesIngested("single", 1)
				AddSamplesBuffered(1)
				AddSamplesBuffered(-1)
				RecordFlushFailure()
				RecordSamplesDiscarded(2)
				RecordSessionTakeover()
				RecordEvaluation(88, "B+", 3)
				RecordEvaluationError()
				RecordViolations("overspeed", 2)
				RecordLiveCheck("clean")
				RecordStoreLatency("get_session", 0.2)
				RecordStoreError("get_session")
				UpdateBreakerState("store", 0)
				RecordHTTPRequest("/sessions", "POST", "201")
				RecordHTTPRequestDuration("/sessions", "POST", "201", 1)
				UpdateWorkerActiveCount(2)
				UpdateWorkerQueueLength(0)
				RecordWorkerProcessingLatency(1)
				RecordWorkerError()
				RecordErrorByComponent("ingest", "storage")
				RecordErrorByType("storage", "high")
				RecordErrorByEndpoint("/sessions", "POST", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(4)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
