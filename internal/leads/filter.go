package leads

import (
	"fmt"
	"strings"
	"time"
)

// AllTypes is the form-type selector that disables the type predicate.
const AllTypes = "all"

// DateLayout is the calendar date format of range bounds.
const DateLayout = "2006-01-02"

// Range is an inclusive calendar date range. A zero bound is unset, and the
// predicate only applies when both bounds are set.
type Range struct {
	Start time.Time
	End   time.Time
}

// Active reports whether both bounds are set.
func (r Range) Active() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// Contains reports whether t falls between Start and the last millisecond
// of the End day.
func (r Range) Contains(t time.Time) bool {
	last := r.End.Add(24*time.Hour - time.Millisecond)
	return !t.Before(r.Start) && !t.After(last)
}

// ParseDateRange reads two YYYY-MM-DD bounds. Empty strings leave a bound unset.
func ParseDateRange(start, end string) (Range, error) {
	var r Range
	var err error
	if r.Start, err = parseDay(start); err != nil {
		return Range{}, fmt.Errorf("start date: %w", err)
	}
	if r.End, err = parseDay(end); err != nil {
		return Range{}, fmt.Errorf("end date: %w", err)
	}
	return r, nil
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Criteria are the dashboard filters.
type Criteria struct {
	Range    Range
	FormType string
}

// DefaultCriteria shows everything.
func DefaultCriteria() Criteria {
	return Criteria{FormType: AllTypes}
}

// Filter returns the leads matching both predicates, in input order. It is
// a pure function of its inputs.
func Filter(list []Lead, c Criteria) []Lead {
	out := make([]Lead, 0, len(list))
	for _, l := range list {
		if c.Range.Active() && (!l.HasAt || !c.Range.Contains(l.At)) {
			continue
		}
		if c.FormType != AllTypes && l.FormType != c.FormType {
			continue
		}
		out = append(out, l)
	}
	return out
}
