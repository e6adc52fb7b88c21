// Package worker delivers queued alerts off the poller's goroutine.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/dosewatch/internal/adapters/mq/queue"
	"github.com/okian/dosewatch/pkg/logger"
	"github.com/okian/dosewatch/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Alert abstracts what workers read off the queue.
type Alert = queue.Alert

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Rechecker reports whether an intake arrived for a dose since a given instant.
type Rechecker interface {
	Exists(ctx context.Context, medicationID, patientID int64, slot string, since time.Time) (bool, error)
}

// Queue defines how workers receive alerts.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Alert
}

// Worker delivers alerts until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed and empty.
	Run(ctx context.Context)

	// Shutdown stops the worker after the alert in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	notifier  Notifier
	recheck   Rechecker
	name      string
	shutdown  chan struct{}
	done      chan struct{}
	logger    logger.Logger
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, n Notifier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		notifier: n,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	alerts := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			w.process(ctx, a)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process delivers one alert. Failures are logged and counted, never retried.
func (w *InMemoryWorker) process(ctx context.Context, a Alert) { //nolint:gocritic // hugeParam: Alert must be passed by value for channel semantics
	if w.recheck != nil && w.confirmedMeanwhile(ctx, a) {
		_ = metrics.RecordAlertSuppressed(metrics.SuppressedRecheck)
		w.logger.Info(ctx, "intake arrived before delivery, alert dropped",
			logger.String("dose", a.Dose.String()))
		return
	}

	if err := w.notifier.Notify(ctx, a); err != nil {
		w.failed.Add(1)
		return
	}
	w.delivered.Add(1)
}

// confirmedMeanwhile re-reads the intake store. A read failure delivers
// the alert anyway.
func (w *InMemoryWorker) confirmedMeanwhile(ctx context.Context, a Alert) bool { //nolint:gocritic // hugeParam
	at := a.ScheduledAt
	since := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	ok, err := w.recheck.Exists(ctx, a.Dose.MedicationID, a.Dose.PatientID, a.Dose.Slot, since)
	if err != nil {
		metrics.RecordStorageError("recheck_intake")
		w.logger.Warn(ctx, "intake recheck failed", logger.String("dose", a.Dose.String()), logger.Error(err))
		return false
	}
	return ok
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	cancel  context.CancelFunc
	logger  logger.Logger
}

// NewPool creates workerCount workers on q. opts apply to every worker.
func NewPool(workerCount int, q Queue, n Notifier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, n, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers. They outlive ctx cancellation so queued
// alerts can drain during Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stats reports delivered and failed alerts across workers.
func (p *Pool) Stats() (delivered, failed int64) {
	for _, w := range p.workers {
		delivered += w.delivered.Load()
		failed += w.failed.Load()
	}
	return delivered, failed
}

// Shutdown closes the queue and waits for the workers to drain it.
// Workers still busy when ctx or the pool timeout expires are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}

	if p.cancel != nil {
		p.cancel()
	}
	metrics.UpdateWorkerCount(0)

	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
