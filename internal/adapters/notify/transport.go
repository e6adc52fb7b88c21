// Package notify delivers missed-dose alerts to caregivers.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Transport delivers one message to one address.
type Transport interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Named is implemented by transports that report a name for metrics and logs.
type Named interface {
	Name() string
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, address, subject, body string) error

func (f TransportFunc) Send(ctx context.Context, address, subject, body string) error {
	return f(ctx, address, subject, body)
}

// NameOf returns t's name, or "custom".
func NameOf(t Transport) string {
	if n, ok := t.(Named); ok {
		return n.Name()
	}
	return "custom"
}

func validate(address, subject, body string) error {
	switch {
	case strings.TrimSpace(address) == "":
		return fmt.Errorf("%w: address is required", ErrInvalidMessage)
	case strings.TrimSpace(subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case strings.TrimSpace(body) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}
