// Package dedupe defines the ledger of dose instances already alerted on.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/dosewatch/internal/domain/model"
)

// Ledger records which dose instances have been alerted so a missed dose
// produces at most one alert, however many poll cycles observe it.
type Ledger interface {
	// TryMarkAlerted atomically inserts key if absent.
	// Returns true if key was newly marked, false if it was already present.
	TryMarkAlerted(ctx context.Context, key model.DoseInstance) bool

	// EvictOlderThan removes keys dated strictly before cutoff and returns
	// how many were removed.
	EvictOlderThan(ctx context.Context, cutoff model.Date) int

	Len(ctx context.Context) int
}

// inMemoryLedger implements Ledger with a mutex-guarded map.
// It lives as long as the process; a restart forgets every mark.
type inMemoryLedger struct {
	mu   sync.Mutex
	seen map[model.DoseInstance]struct{}
	size atomic.Int64
	hint int
}

// NewInMemoryLedger creates an in-memory ledger.
func NewInMemoryLedger(opts ...Option) Ledger {
	l := &inMemoryLedger{}
	for _, opt := range opts {
		opt(l)
	}
	l.seen = make(map[model.DoseInstance]struct{}, l.hint)
	return l
}

func (l *inMemoryLedger) TryMarkAlerted(_ context.Context, key model.DoseInstance) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[key]; exists {
		return false
	}
	l.seen[key] = struct{}{}
	l.size.Add(1)
	return true
}

func (l *inMemoryLedger) EvictOlderThan(_ context.Context, cutoff model.Date) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key := range l.seen {
		// zero dates cannot be ordered against the cutoff; keep them
		if key.Date.IsZero() {
			continue
		}
		if key.Date.Before(cutoff) {
			delete(l.seen, key)
			removed++
		}
	}
	l.size.Add(int64(-removed))
	return removed
}

func (l *inMemoryLedger) Len(_ context.Context) int {
	return int(l.size.Load())
}
