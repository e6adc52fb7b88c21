package dedupe

// Option applies a configuration option to the in-memory ledger.
type Option func(*inMemoryLedger)

// WithCapacityHint pre-sizes the ledger for roughly n marks, e.g. two days
// of slots across all active medications.
func WithCapacityHint(n int) Option {
	return func(l *inMemoryLedger) {
		if n > 0 {
			l.hint = n
		}
	}
}
