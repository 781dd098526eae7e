package download

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRange is returned for malformed, missing or inverted date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// DateRange is an inclusive time window.
type DateRange struct {
	Since time.Time
	Until time.Time
}

// ParseDateRange parses YYYY-MM-DD dates into a range covering whole days:
// from the start of since to the end of until, in UTC.
// An empty until means the day of now; an empty since means def before until.
func ParseDateRange(since, until string, now time.Time, def time.Duration) (DateRange, error) {
	var r DateRange

	if until = strings.TrimSpace(until); until == "" {
		now = now.UTC()
		r.Until = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		t, err := time.Parse(time.DateOnly, until)
		if err != nil {
			return r, fmt.Errorf("%w: until %q is not YYYY-MM-DD", ErrInvalidRange, until)
		}
		r.Until = t
	}

	if since = strings.TrimSpace(since); since == "" {
		r.Since = r.Until.Add(-def)
	} else {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return r, fmt.Errorf("%w: since %q is not YYYY-MM-DD", ErrInvalidRange, since)
		}
		r.Since = t
	}

	r.Until = r.Until.Add(24*time.Hour - time.Nanosecond)
	return r, r.Validate()
}

// Validate checks that both ends are set and the range is not inverted.
func (r DateRange) Validate() error {
	if r.Since.IsZero() || r.Until.IsZero() {
		return fmt.Errorf("%w: both ends are required", ErrInvalidRange)
	}
	if r.Since.After(r.Until) {
		return fmt.Errorf("%w: since %s is after until %s", ErrInvalidRange,
			r.Since.Format(time.DateOnly), r.Until.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether t lies within the range, inclusive of both ends.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Since) && !t.After(r.Until)
}

// String formats the range as "since..until" dates.
func (r DateRange) String() string {
	return r.Since.Format(time.DateOnly) + ".." + r.Until.Format(time.DateOnly)
}
