package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

const defaultSMTPTimeout = 30 * time.Second

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled  bool
	From     string
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration
}

// EmailTransport sends plain-text mail over SMTP.
type EmailTransport struct {
	cfg    EmailConfig
	sender gomail.Sender // nil dials cfg.Host per message
}

// NewEmailTransport creates an SMTP transport.
func NewEmailTransport(cfg EmailConfig) *EmailTransport {
	return &EmailTransport{cfg: cfg}
}

// WithSender replaces SMTP dialing with s.
func (t *EmailTransport) WithSender(s gomail.Sender) *EmailTransport {
	t.sender = s
	return t
}

func (t *EmailTransport) Name() string { return "email" }

func (t *EmailTransport) Send(ctx context.Context, address, subject, body string) error {
	if !t.cfg.Enabled {
		return ErrDisabled
	}
	msg, err := t.buildMessage(address, subject, body)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		if t.sender != nil {
			done <- gomail.Send(t.sender, msg)
			return
		}
		done <- t.newDialer().DialAndSend(msg)
	}()

	// Respect ctx deadline if it's sooner than our config timeout.
	wait := t.timeout()
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return ErrSend{Provider: "gomail/smtp", Err: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

func (t *EmailTransport) timeout() time.Duration {
	if t.cfg.Timeout <= 0 {
		return defaultSMTPTimeout
	}
	return t.cfg.Timeout
}

func (t *EmailTransport) newDialer() *gomail.Dialer {
	d := gomail.NewDialer(t.cfg.Host, t.cfg.Port, t.cfg.Username, t.cfg.Password)
	d.SSL = t.cfg.UseTLS
	if t.cfg.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return d
}

func (t *EmailTransport) buildMessage(address, subject, body string) (*gomail.Message, error) {
	from := strings.TrimSpace(t.cfg.From)
	if from == "" {
		return nil, fmt.Errorf("%w: from is required", ErrInvalidMessage)
	}
	if err := validate(address, subject, body); err != nil {
		return nil, err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", strings.TrimSpace(address))
	msg.SetHeader("Subject", strings.TrimSpace(subject))
	msg.SetBody("text/plain", body)
	return msg, nil
}
