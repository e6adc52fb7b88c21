package notify

import (
	"errors"
	"fmt"
)

// Sentinel kinds for notification errors.
var (
	ErrDisabled       = errors.New("transport disabled")
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnroutable     = errors.New("address matches no transport")
)

// ErrSend wraps a provider failure.
type ErrSend struct {
	Provider string
	Err      error
}

func (e ErrSend) Error() string { return fmt.Sprintf("send failed (%s): %v", e.Provider, e.Err) }
func (e ErrSend) Unwrap() error { return e.Err }
