// Package queue buffers alerts between the poller and the delivery workers.
//
// The poller must never block on delivery, so Enqueue fails fast when the
// buffer is full and the alert is dropped by the caller.
package queue

import (
	"context"
	"sync"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Alert is the payload type flowing through the queue.
type Alert = model.Alert

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an alert without blocking.
	// Returns ErrFull, ErrClosed or the context error when it was not added.
	Enqueue(ctx context.Context, a Alert) error

	// Dequeue returns a channel that receives alerts as they become available.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Alert

	// Len returns the current number of queued alerts.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting alerts. Queued alerts can still be dequeued.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	alerts   chan Alert
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.alerts = make(chan Alert, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, a Alert) error { //nolint:gocritic // hugeParam: Alert must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.alerts <- a:
		metrics.UpdateQueueSize(len(q.alerts))
		return nil
	default:
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Alert {
	out := make(chan Alert)
	go func() {
		defer close(out)
		for {
			select {
			case a, ok := <-q.alerts:
				if !ok {
					return
				}
				select {
				case out <- a:
					metrics.UpdateQueueSize(len(q.alerts))
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.alerts)
	metrics.UpdateQueueSize(size)
	return size
}

func (q *InMemoryQueue) Cap() int { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.alerts)
	q.closed = true

	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
