package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/pkg/logger"
	"github.com/okian/dosewatch/pkg/metrics"
)

const defaultNotifyTimeout = 15 * time.Second

// RenderFunc turns an alert into a subject and body.
type RenderFunc func(model.Alert) (subject, body string)

// Option configures a Notifier.
type Option func(*Notifier)

// WithTimeout bounds a single delivery.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(log logger.Logger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.log = log
		}
	}
}

// WithRenderer replaces the default message text.
func WithRenderer(r RenderFunc) Option {
	return func(n *Notifier) {
		if r != nil {
			n.render = r
		}
	}
}

// Notifier renders alerts and hands them to a transport. It never retries.
type Notifier struct {
	transport Transport
	timeout   time.Duration
	log       logger.Logger
	render    RenderFunc
}

// New creates a Notifier on t.
func New(t Transport, opts ...Option) *Notifier {
	n := &Notifier{
		transport: t,
		timeout:   defaultNotifyTimeout,
		render:    Render,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = logger.Get().Named("notify")
	}
	return n
}

// Notify delivers alert to its caregiver.
func (n *Notifier) Notify(ctx context.Context, alert model.Alert) error {
	subject, body := n.render(alert)
	name := n.transportName(alert.Caregiver.Address)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	err := n.transport.Send(ctx, alert.Caregiver.Address, subject, body)
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		metrics.RecordNotification(name, metrics.OutcomeError, latency)
		n.log.Error(ctx, "alert delivery failed",
			logger.String("dose", alert.Dose.String()),
			logger.String("transport", name),
			logger.Int64("caregiver_id", alert.Caregiver.ID),
			logger.Error(err))
		return fmt.Errorf("notify caregiver %d: %w", alert.Caregiver.ID, err)
	}

	metrics.RecordNotification(name, metrics.OutcomeOK, latency)
	n.log.Info(ctx, "alert delivered",
		logger.String("dose", alert.Dose.String()),
		logger.String("transport", name),
		logger.Int64("caregiver_id", alert.Caregiver.ID))
	return nil
}

func (n *Notifier) transportName(address string) string {
	if r, ok := n.transport.(*Router); ok {
		if t, err := r.Route(address); err == nil {
			return NameOf(t)
		}
	}
	return NameOf(n.transport)
}

// Render is the default alert text: who missed what, and when.
func Render(a model.Alert) (subject, body string) {
	subject = fmt.Sprintf("Missed medication - %s", a.PatientLabel)

	greeting := "Hello,"
	if a.Caregiver.DisplayName != "" {
		greeting = fmt.Sprintf("Hello %s,", a.Caregiver.DisplayName)
	}
	body = fmt.Sprintf(`%s

%s has not confirmed taking '%s' today.

Scheduled time: %s
Date: %s

Please check whether the medication has been taken.

Kind regards,
Medication reminder service
`, greeting, a.PatientLabel, a.MedicationLabel, a.Dose.Slot, a.Dose.Date)
	return subject, body
}
