package service

import (
	"time"

	"github.com/okian/dosewatch/internal/domain/clock"
	"github.com/okian/dosewatch/internal/domain/dedupe"
	"github.com/okian/dosewatch/internal/domain/window"
	"github.com/okian/dosewatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the alert queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPollInterval sets the time between cycles.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithEvaluator sets the dose window evaluator.
func WithEvaluator(e *window.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithLedger sets the dedup ledger. Defaults to an in-memory ledger.
func WithLedger(l dedupe.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithRecheckIntake makes workers re-read intakes right before delivery.
func WithRecheckIntake(enabled bool) Option {
	return func(s *Service) {
		s.recheck = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
