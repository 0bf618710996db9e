// Package recurrence advances repeating ride dates to their next occurrence.
//
// Advancement is lazy: callers compute the next occurrence when a ride is read
// and persist it back. NextOccurrence is pure, so concurrent readers that
// persist the same result are harmless.
package recurrence

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	None    Kind = "none"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
)

// MaxSteps bounds the number of intervals NextOccurrence will walk.
const MaxSteps = 1000

// Parse normalizes a stored recurrence value. Empty means None.
func Parse(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return None, nil
	case None, Daily, Weekly, Monthly, Yearly:
		return k, nil
	default:
		return None, fmt.Errorf("unknown recurrence %q", s)
	}
}

// Repeats reports whether k advances at all.
func (k Kind) Repeats() bool {
	switch k {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// NextOccurrence returns the first occurrence of base, stepping by kind, that
// is strictly after reference. ok is false when no advancement applies: kind
// does not repeat, base is already after reference, or MaxSteps intervals
// were not enough.
func NextOccurrence(base time.Time, kind Kind, reference time.Time) (next time.Time, ok bool) {
	if !kind.Repeats() || base.After(reference) {
		return time.Time{}, false
	}
	for n := 1; n <= MaxSteps; n++ {
		candidate := step(base, kind, n)
		if candidate.After(reference) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// step returns base advanced by n intervals. Month and year steps are taken
// from base rather than chained, and clamp the day to the target month, so a
// ride on Jan 31 lands on Feb 28 and then Mar 31 again.
func step(base time.Time, kind Kind, n int) time.Time {
	switch kind {
	case Daily:
		return base.AddDate(0, 0, n)
	case Weekly:
		return base.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(base, n)
	case Yearly:
		return addMonthsClamped(base, 12*n)
	}
	return base
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
