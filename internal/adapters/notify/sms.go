package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arsmn/go-smsir/smsir"
	"github.com/nyaruka/phonenumbers"
)

// SMSConfig holds sms.ir settings.
type SMSConfig struct {
	Enabled       bool
	APIKey        string
	SecretKey     string
	TemplateID    string
	DefaultRegion string // ISO 3166 region for numbers without a country code
}

type ultraFastFunc func(ctx context.Context, req *smsir.UltraFastSendRequest) error

// SMSTransport sends alerts through an sms.ir template. The template gets
// two parameters: "subject" and "message".
type SMSTransport struct {
	cfg  SMSConfig
	send ultraFastFunc
}

// NewSMSTransport creates an sms.ir transport.
func NewSMSTransport(cfg SMSConfig) (*SMSTransport, error) {
	t := &SMSTransport{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}
	if cfg.APIKey == "" {
		return nil, errors.New("sms.ir API key required when SMS enabled")
	}
	if cfg.TemplateID == "" {
		return nil, errors.New("sms.ir template ID required when SMS enabled")
	}

	client := smsir.NewClient().WithAuthentication(cfg.APIKey, cfg.SecretKey)
	t.send = func(ctx context.Context, req *smsir.UltraFastSendRequest) error {
		_, err := client.Verification.UltraFastSend(ctx, req)
		return err
	}
	return t, nil
}

func (t *SMSTransport) Name() string { return "sms" }

func (t *SMSTransport) Send(ctx context.Context, address, subject, body string) error {
	if !t.cfg.Enabled || t.send == nil {
		return ErrDisabled
	}
	if err := validate(address, subject, body); err != nil {
		return err
	}
	mobile, err := NormalizePhone(address, t.cfg.DefaultRegion)
	if err != nil {
		return err
	}

	req := &smsir.UltraFastSendRequest{
		Mobile:     mobile,
		TemplateID: t.cfg.TemplateID,
		Parameters: []smsir.UltraFastParameter{
			{Key: "subject", Value: strings.TrimSpace(subject)},
			{Key: "message", Value: strings.TrimSpace(body)},
		},
	}
	if err := t.send(ctx, req); err != nil {
		return ErrSend{Provider: "sms.ir", Err: err}
	}
	return nil
}

// NormalizePhone parses address as a phone number and returns it in E.164.
func NormalizePhone(address, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(address), strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidMessage, address, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q is not a valid phone number", ErrInvalidMessage, address)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
