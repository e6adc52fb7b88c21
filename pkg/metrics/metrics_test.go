package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads the current value of a counter or gauge.
func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	return out.GetCounter().GetValue() + out.GetGauge().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the dosewatch namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "dosewatch")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("poller"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.cycles.WithLabelValues(OutcomeOK).Inc()

			Convey("Then metrics carry the custom names and labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_poller_cycles_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "dosewatch")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording cycle metrics", func() {
			before := value(globalManager.cycles.WithLabelValues(OutcomeError))
			RecordCycle(OutcomeError, 12)

			Convey("Then the counter grows", func() {
				So(value(globalManager.cycles.WithLabelValues(OutcomeError)), ShouldEqual, before+1)
			})
		})

		Convey("When recording slot verdicts", func() {
			before := value(globalManager.slotVerdicts.WithLabelValues(VerdictMalformed))

			So(RecordSlotVerdict(VerdictMalformed), ShouldBeNil)
			So(value(globalManager.slotVerdicts.WithLabelValues(VerdictMalformed)), ShouldEqual, before+1)

			err := RecordSlotVerdict("late")
			So(errors.Is(err, ErrUnknownLabel), ShouldBeTrue)
		})

		Convey("When recording suppressed alerts", func() {
			So(RecordAlertSuppressed(SuppressedIntake), ShouldBeNil)
			So(RecordAlertSuppressed(SuppressedDuplicate), ShouldBeNil)
			So(errors.Is(RecordAlertSuppressed("bored"), ErrUnknownLabel), ShouldBeTrue)
		})

		Convey("When updating gauges", func() {
			UpdateLedgerSize(7)
			UpdateQueueSize(3)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(2)
			UpdateActiveMedications(5)

			Convey("Then they hold the latest value", func() {
				So(value(globalManager.ledgerSize), ShouldEqual, 7)
				So(value(globalManager.queueSize), ShouldEqual, 3)
				So(value(globalManager.queueCapacity), ShouldEqual, 100)
				So(value(globalManager.workerCount), ShouldEqual, 2)
				So(value(globalManager.medicationsTotal), ShouldEqual, 5)
			})
		})

		Convey("When recording ledger evictions", func() {
			before := value(globalManager.ledgerEvictions)
			RecordLedgerEvictions(3)
			RecordLedgerEvictions(0)
			So(value(globalManager.ledgerEvictions), ShouldEqual, before+3)
		})

		Convey("When recording delivery and HTTP metrics", func() {
			So(func() {
				RecordNotification("email", OutcomeOK, 4.2)
				RecordAlertEnqueued()
				RecordAlertDropped()
				RecordLedgerError()
				RecordStorageError("list_active")
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 0.3)
				RecordHTTPError("/stats", "GET", "server_error", "high")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry exposes dosewatch metrics", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "dosewatch_engine_cycles_total")
		})
	})
}
