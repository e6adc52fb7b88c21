package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	service "github.com/okian/dosewatch/internal/app"
	"github.com/okian/dosewatch/internal/adapters/ledger"
	"github.com/okian/dosewatch/internal/adapters/notify"
	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/internal/domain/clock"
	"github.com/okian/dosewatch/internal/domain/window"
	. "github.com/smartystreets/goconvey/convey"
)

const integrationFixtures = `
patients:
  - id: 1
    name: Jan
    caregiver: {id: 10, name: Ans, address: ans@example.org}
    medications:
      - id: 100
        name: Metformin
        dosage: 500mg
        schedule:
          monday: {enabled: true, times: ["08:00", "20:00"]}
  - id: 2
    name: Piet
    medications:
      - id: 200
        name: Lisinopril
        schedule:
          monday: {enabled: true, times: ["08:00"]}
`

func TestService_Integration(t *testing.T) {
	ctx := context.Background()

	Convey("Given two engine replicas sharing a redis ledger and writing to an outbox", t, func() {
		dir := t.TempDir()
		fixturesPath := filepath.Join(dir, "fixtures.yaml")
		So(os.WriteFile(fixturesPath, []byte(integrationFixtures), 0o600), ShouldBeNil)

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		Reset(func() { _ = client.Close() })

		outbox := notify.NewFileTransport(filepath.Join(dir, "emails.log"))
		Reset(func() { _ = outbox.Close() })

		now := clock.Fixed(monday(8, 7, 0))

		replica := func() *service.Service {
			store := repository.NewMemoryStore()
			n, err := repository.LoadFixtures(store, fixturesPath)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			return service.New(store, notify.New(outbox),
				service.WithClock(now),
				service.WithLedger(ledger.NewRedisLedger(client)),
				service.WithEvaluator(window.New(window.WithLocation(time.UTC))),
				service.WithWorkerCount(1),
			)
		}
		a, b := replica(), replica()

		Convey("When both run a cycle at 08:07", func() {
			first, err := a.RunOnce(ctx)
			So(err, ShouldBeNil)
			second, err := b.RunOnce(ctx)
			So(err, ShouldBeNil)

			Convey("Then only one replica alerts per dose", func() {
				So(first.Alertable, ShouldEqual, 2)
				So(first.Enqueued, ShouldEqual, 1)
				So(first.MissingCaregiver, ShouldEqual, 1)
				So(second.Duplicates, ShouldEqual, 2)
				So(second.Enqueued, ShouldEqual, 0)
				So(mr.Keys(), ShouldHaveLength, 2)
			})

			Convey("Then the outbox holds the caregiver message", func() {
				content, err := os.ReadFile(outbox.Path())
				So(err, ShouldBeNil)
				So(string(content), ShouldContainSubstring, "ans@example.org")
				So(string(content), ShouldContainSubstring, "Missed medication - Jan")
				So(string(content), ShouldContainSubstring, "Metformin 500mg")
			})
		})
	})
}
