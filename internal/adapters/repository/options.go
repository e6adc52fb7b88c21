package repository

import (
	"time"

	"github.com/okian/dosewatch/pkg/logger"
)

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithQueryTimeout bounds every query issued by the store.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *PostgresStore) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithLogger sets the logger used for skipped rows.
func WithLogger(log logger.Logger) Option {
	return func(s *PostgresStore) {
		if log != nil {
			s.log = log
		}
	}
}
