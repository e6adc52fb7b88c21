// Package schedule resolves weekly medication schedules into the dose slots
// of a given day. Nothing here fails hard: unknown weekdays and malformed
// times resolve to "no dose" and are reported, not raised.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/dosewatch/internal/domain/model"
)

const (
	hoursPerDay    = 24
	minutesPerHour = 60
)

// Weekday maps a weekday name such as "Monday" or " sunday" to time.Weekday.
func Weekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, true
		}
	}
	return 0, false
}

// SlotsFor returns the slots enabled on date's weekday in declared order,
// in canonical "HH:MM" form and without duplicates. A missing or disabled
// weekday yields nil. Malformed slots are returned trimmed but otherwise as
// written; ParseSlot decides whether they are usable.
func SlotsFor(ws model.WeeklySchedule, date model.Date) []string {
	day, ok := dayOf(ws, date.Weekday())
	if !ok || !day.Enabled {
		return nil
	}

	seen := make(map[string]struct{}, len(day.Times))
	slots := make([]string, 0, len(day.Times))
	for _, t := range day.Times {
		t = Canonical(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		slots = append(slots, t)
	}
	return slots
}

// dayOf finds the DaySchedule for wd, matching keys case-insensitively.
func dayOf(ws model.WeeklySchedule, wd time.Weekday) (model.DaySchedule, bool) {
	want := strings.ToLower(wd.String())
	if day, ok := ws[want]; ok {
		return day, true
	}
	for key, day := range ws {
		if d, ok := Weekday(key); ok && d == wd {
			return day, true
		}
	}
	return model.DaySchedule{}, false
}

// ParseSlot parses a 24-hour "HH:MM" (or "H:MM") slot.
func ParseSlot(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedSlot, s)
	}
	hour, _ = strconv.Atoi(hh)
	minute, _ = strconv.Atoi(mm)
	if hour >= hoursPerDay || minute >= minutesPerHour {
		return 0, 0, fmt.Errorf("%w: %q out of range", ErrMalformedSlot, s)
	}
	return hour, minute, nil
}

// Canonical returns s as zero-padded "HH:MM" when it parses, so "8:00" and
// "08:00" name the same dose. Anything else comes back trimmed.
func Canonical(s string) string {
	h, m, err := ParseSlot(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate lists every unknown weekday key and malformed slot in ws.
// The result is informational; callers keep using the schedule.
func Validate(ws model.WeeklySchedule) []error {
	keys := make([]string, 0, len(ws))
	for k := range ws {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if _, ok := Weekday(k); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownWeekday, k))
			continue
		}
		for _, t := range ws[k].Times {
			if _, _, err := ParseSlot(t); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
			}
		}
	}
	return errs
}
