package notify

import (
	"context"
	"fmt"
	"strings"
)

// Router picks a transport from the shape of the address: e-mail addresses
// go to Email, phone numbers to SMS. A nil transport makes its kind of
// address unroutable.
type Router struct {
	Email  Transport
	SMS    Transport
	Region string
}

func (r *Router) Name() string { return "router" }

func (r *Router) Send(ctx context.Context, address, subject, body string) error {
	t, err := r.Route(address)
	if err != nil {
		return err
	}
	return t.Send(ctx, address, subject, body)
}

// Route returns the transport that handles address.
func (r *Router) Route(address string) (Transport, error) {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "@") {
		if r.Email == nil {
			return nil, fmt.Errorf("%w: %q (no e-mail transport)", ErrUnroutable, address)
		}
		return r.Email, nil
	}
	if _, err := NormalizePhone(address, r.Region); err == nil {
		if r.SMS == nil {
			return nil, fmt.Errorf("%w: %q (no sms transport)", ErrUnroutable, address)
		}
		return r.SMS, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnroutable, address)
}
