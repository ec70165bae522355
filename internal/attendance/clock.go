package attendance

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseClock accepts "HH:MM" or "HH:MM:SS"; the hour may be a single digit.
func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("15:04", s); err == nil {
		return t, nil
	}
	return time.Parse("15:04:05", s)
}

// normalizeClock returns s as "HH:MM".
func normalizeClock(s string) (string, error) {
	t, err := parseClock(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid time %q", ErrValidation, s)
	}
	return t.Format("15:04"), nil
}

// clockOn places a wall-clock time on a calendar date in loc.
func clockOn(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	c, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

// laterClock returns whichever of a and b is later in the day; invalid values lose.
func laterClock(a, b string) string {
	ta, errA := parseClock(a)
	tb, errB := parseClock(b)
	switch {
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	default:
		return a
	}
}

// checkWindow rejects an end time earlier than start. Both are normalized "HH:MM".
func checkWindow(start string, end *string) error {
	if end == nil || *end >= start {
		return nil
	}
	return fmt.Errorf("%w: end_time %s is before start_time %s", ErrValidation, *end, start)
}
