// Package window classifies a dose slot against the current time.
package window

import (
	"fmt"
	"time"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/internal/domain/schedule"
)

// Default window bounds.
const (
	DefaultGracePeriod = 5 * time.Minute
	DefaultUpperBound  = 10 * time.Minute
)

// Status is the outcome of classifying a slot.
type Status int

const (
	// NotYetDue means the grace period has not elapsed, or the slot is in the future.
	NotYetDue Status = iota
	// Alertable means the dose is missed and still inside the alert window.
	Alertable
	// Expired means the alert window has closed. Expired doses are dropped silently.
	Expired
)

func (s Status) String() string {
	switch s {
	case NotYetDue:
		return "not_yet_due"
	case Alertable:
		return "alertable"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Verdict is the classification of one slot at one instant.
type Verdict struct {
	Status      Status
	ScheduledAt time.Time
	Elapsed     time.Duration
}

// Evaluator decides which doses are alertable.
type Evaluator struct {
	grace time.Duration
	upper time.Duration
	loc   *time.Location
}

// New returns an Evaluator with a 5 minute grace period and a 10 minute
// upper bound in the local timezone.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		grace: DefaultGracePeriod,
		upper: DefaultUpperBound,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.upper < e.grace {
		e.upper = e.grace
	}
	return e
}

// GracePeriod returns the configured grace period.
func (e *Evaluator) GracePeriod() time.Duration { return e.grace }

// UpperBound returns the configured upper bound.
func (e *Evaluator) UpperBound() time.Duration { return e.upper }

// Location returns the timezone slots are interpreted in.
func (e *Evaluator) Location() *time.Location { return e.loc }

// ScheduledAt combines date and slot into an instant in the evaluator's timezone.
func (e *Evaluator) ScheduledAt(slot string, date model.Date) (time.Time, error) {
	h, m, err := schedule.ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year, date.Month, date.Day, h, m, 0, 0, e.loc), nil
}

// Classify reports where now falls relative to the slot on date.
// Both bounds of the alertable band are inclusive. A malformed slot is
// reported as NotYetDue together with schedule.ErrMalformedSlot.
func (e *Evaluator) Classify(slot string, date model.Date, now time.Time) (Verdict, error) {
	at, err := e.ScheduledAt(slot, date)
	if err != nil {
		return Verdict{Status: NotYetDue}, err
	}

	elapsed := now.Sub(at)
	v := Verdict{ScheduledAt: at, Elapsed: elapsed}
	switch {
	case elapsed < e.grace:
		v.Status = NotYetDue
	case elapsed <= e.upper:
		v.Status = Alertable
	default:
		v.Status = Expired
	}
	return v, nil
}

// Today returns the calendar date of now in the evaluator's timezone.
func (e *Evaluator) Today(now time.Time) model.Date {
	return model.DateOf(now.In(e.loc))
}
