package window

import "time"

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithGracePeriod sets how long after a slot a dose may still be recorded
// before it counts as missed.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Evaluator) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// WithUpperBound sets how long after a slot a missed dose is still worth
// alerting about.
func WithUpperBound(d time.Duration) Option {
	return func(e *Evaluator) {
		if d >= 0 {
			e.upper = d
		}
	}
}

// WithLocation sets the timezone slots are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}
