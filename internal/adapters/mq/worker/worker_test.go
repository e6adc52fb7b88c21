package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/dosewatch/internal/adapters/mq/queue"
	worker "github.com/okian/dosewatch/internal/adapters/mq/worker"
	model "github.com/okian/dosewatch/internal/domain/model"
	logging "github.com/okian/dosewatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []model.DoseInstance
	fail  map[int64]error
	delay time.Duration
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{fail: make(map[int64]error)}
}

func (m *mockNotifier) Notify(ctx context.Context, a queue.Alert) error { //nolint:gocritic // hugeParam
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[a.Dose.MedicationID]; err != nil {
		return err
	}
	m.sent = append(m.sent, a.Dose)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockRechecker struct {
	confirmed map[int64]bool
	err       error
	since     time.Time
}

func (m *mockRechecker) Exists(_ context.Context, medicationID, _ int64, _ string, since time.Time) (bool, error) {
	m.since = since
	return m.confirmed[medicationID], m.err
}

func alert(med int64) queue.Alert {
	return model.Alert{
		Dose: model.DoseInstance{
			MedicationID: med,
			PatientID:    7,
			Date:         model.Date{Year: 2024, Month: time.March, Day: 4},
			Slot:         "08:00",
		},
		ScheduledAt: time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC),
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker on an alert queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		n := newMockNotifier()
		w := worker.NewInMemoryWorker(q, n, worker.WithName("w-test"), worker.WithLogger(logging.Get()))
		ctx := context.Background()
		go w.Run(ctx)

		convey.Convey("When alerts are enqueued", func() {
			convey.So(q.Enqueue(ctx, alert(1)), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, alert(2)), convey.ShouldBeNil)

			convey.Convey("Then each is delivered once", func() {
				convey.So(waitFor(func() bool { return n.count() == 2 }), convey.ShouldBeTrue)
				convey.So(q.Close(), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(n.count(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When delivery fails", func() {
			n.fail[1] = errors.New("smtp down")
			convey.So(q.Enqueue(ctx, alert(1)), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, alert(2)), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going without retrying", func() {
				convey.So(waitFor(func() bool { return n.count() == 1 }), convey.ShouldBeTrue)
				convey.So(q.Close(), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(n.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shut down twice", func() {
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerRecheck(t *testing.T) {
	convey.Convey("Given a worker that rechecks intakes", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		n := newMockNotifier()
		r := &mockRechecker{confirmed: map[int64]bool{1: true}}
		w := worker.NewInMemoryWorker(q, n, worker.WithRecheck(r))
		ctx := context.Background()
		go w.Run(ctx)

		convey.Convey("When a dose was confirmed after it was queued", func() {
			convey.So(q.Enqueue(ctx, alert(1)), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, alert(2)), convey.ShouldBeNil)
			convey.So(waitFor(func() bool { return n.count() == 1 }), convey.ShouldBeTrue)
			convey.So(q.Close(), convey.ShouldBeNil)
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then only the unconfirmed dose is delivered", func() {
				convey.So(n.sent[0].MedicationID, convey.ShouldEqual, 2)
				convey.So(r.since, convey.ShouldEqual, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC))
			})
		})

		convey.Convey("When the recheck fails", func() {
			r.err = errors.New("db gone")
			convey.So(q.Enqueue(ctx, alert(1)), convey.ShouldBeNil)

			convey.Convey("Then the alert is delivered anyway", func() {
				convey.So(waitFor(func() bool { return n.count() == 1 }), convey.ShouldBeTrue)
				convey.So(q.Close(), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		n := newMockNotifier()
		n.fail[99] = errors.New("unroutable")
		p := worker.NewPool(3, q, n)
		convey.So(p.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)

		convey.Convey("When alerts are queued and the pool shuts down", func() {
			for i := int64(1); i <= 20; i++ {
				convey.So(q.Enqueue(ctx, alert(i)), convey.ShouldBeNil)
			}
			convey.So(q.Enqueue(ctx, alert(99)), convey.ShouldBeNil)
			cancel()

			err := p.Shutdown(context.Background())

			convey.Convey("Then the queue is drained before workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n.count(), convey.ShouldEqual, 20)
				delivered, failed := p.Stats()
				convey.So(delivered, convey.ShouldEqual, 20)
				convey.So(failed, convey.ShouldEqual, 1)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the worker count is not positive", func() {
			cancel()
			convey.So(worker.NewPool(0, q, n).Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a pool whose deliveries hang", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		n := newMockNotifier()
		n.delay = time.Hour
		p := worker.NewPool(1, q, n)
		p.Start(context.Background())
		convey.So(q.Enqueue(context.Background(), alert(1)), convey.ShouldBeNil)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When shutdown runs out of time", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := p.Shutdown(ctx)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}
