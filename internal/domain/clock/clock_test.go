package clock_test

import (
	"testing"
	"time"

	"github.com/okian/dosewatch/internal/domain/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClock(t *testing.T) {
	Convey("Given clocks", t, func() {
		Convey("When the clock is fixed", func() {
			at := time.Date(2024, time.March, 4, 8, 6, 0, 0, time.UTC)
			c := clock.Fixed(at)

			Convey("Then it always reports the same instant", func() {
				So(c.Now(), ShouldEqual, at)
				So(c.Now(), ShouldEqual, at)
			})
		})

		Convey("When using the system clock", func() {
			before := time.Now()
			now := clock.System.Now()

			Convey("Then it follows wall time", func() {
				So(now.Before(before), ShouldBeFalse)
			})
		})
	})
}
