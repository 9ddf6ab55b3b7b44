package schedule

import (
	"fmt"
	"time"
)

// Floating is the location of naive instants: wall-clock values that carry
// no zone. Build them with Naive or NaiveFrom.
var Floating = time.FixedZone("floating", 0)

// Naive returns a naive instant with the given wall clock.
func Naive(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, Floating)
}

// NaiveFrom drops the zone of t and keeps its wall clock.
func NaiveFrom(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Floating)
}

// IsNaive reports whether t carries no zone.
func IsNaive(t time.Time) bool {
	return t.Location() == Floating
}

// ZonePolicy decides what happens when naive and zoned instants meet.
type ZonePolicy struct {
	// AllowNaive coerces naive instants into DefaultLocation instead of
	// rejecting them.
	AllowNaive bool
	// DefaultLocation receives coerced naive instants. Nil means UTC.
	DefaultLocation *time.Location
}

// DefaultZonePolicy rejects mixed comparisons.
var DefaultZonePolicy = ZonePolicy{DefaultLocation: time.UTC}

func (p ZonePolicy) location() *time.Location {
	if p.DefaultLocation == nil {
		return time.UTC
	}
	return p.DefaultLocation
}

// Coerce makes a single naive instant zoned. Zoned instants are returned
// unchanged. It fails when the policy does not allow naive input.
func (p ZonePolicy) Coerce(t time.Time) (time.Time, error) {
	if !IsNaive(t) {
		return t, nil
	}
	if !p.AllowNaive {
		return t, &Error{
			Kind:    KindNaiveInstantComparison,
			Message: fmt.Sprintf("naive instant %s used where a zoned instant is required", t.Format("2006-01-02T15:04:05")),
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), p.location()), nil
}

// Resolve brings a set of instants that are about to be compared onto a
// common footing. When all are naive, or all are zoned, nothing changes.
// Otherwise every naive instant is coerced, or an error is returned.
func (p ZonePolicy) Resolve(instants ...*time.Time) error {
	naive, zoned := 0, 0
	for _, t := range instants {
		if t == nil || t.IsZero() {
			continue
		}
		if IsNaive(*t) {
			naive++
		} else {
			zoned++
		}
	}
	if naive == 0 || zoned == 0 {
		return nil
	}

	for _, t := range instants {
		if t == nil || t.IsZero() || !IsNaive(*t) {
			continue
		}
		coerced, err := p.Coerce(*t)
		if err != nil {
			return err
		}
		*t = coerced
	}
	return nil
}
