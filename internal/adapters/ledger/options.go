package ledger

import (
	"time"

	"github.com/okian/dosewatch/pkg/logger"
)

// Option configures a RedisLedger.
type Option func(*RedisLedger)

// WithPrefix sets the key prefix. Keys look like
// "<prefix>:<date>:<medication>:<patient>:<slot>".
func WithPrefix(prefix string) Option {
	return func(l *RedisLedger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithExpiry sets the TTL put on every mark. It only bounds memory if
// eviction stops running; EvictOlderThan is still the primary cleanup.
func WithExpiry(d time.Duration) Option {
	return func(l *RedisLedger) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(log logger.Logger) Option {
	return func(l *RedisLedger) {
		if log != nil {
			l.log = log
		}
	}
}
