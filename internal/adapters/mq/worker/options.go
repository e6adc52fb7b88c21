package worker

import (
	"github.com/okian/dosewatch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRecheck makes the worker re-read the intake store right before
// delivery and drop alerts whose dose was confirmed meanwhile.
func WithRecheck(r Rechecker) Option {
	return func(w *InMemoryWorker) {
		w.recheck = r
	}
}
