package schedule

import "errors"

// Sentinel kinds for schedule errors.
var (
	ErrMalformedSlot  = errors.New("malformed slot")
	ErrUnknownWeekday = errors.New("unknown weekday")
)
