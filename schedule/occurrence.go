package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Occurrence is one realized interval of an event. Ephemeral occurrences are
// computed on demand and have a nil ID; persisted ones are overrides.
type Occurrence struct {
	ID    uuid.UUID
	Event *Event

	// Start and End are the current interval, possibly moved.
	Start time.Time
	End   time.Time
	// OriginalStart and OriginalEnd are where the rule generated the
	// occurrence. They never change and identify the occurrence.
	OriginalStart time.Time
	OriginalEnd   time.Time

	Cancelled   bool
	Title       string
	Description string
	CreatedOn   time.Time
	UpdatedOn   time.Time
}

// Key identifies an occurrence by its original interval. Keys are comparable
// with ==, so they can index maps.
type Key struct {
	Start time.Time
	End   time.Time
}

// Key returns the occurrence's move-tracking key.
func (o *Occurrence) Key() Key {
	return Key{Start: o.OriginalStart.UTC(), End: o.OriginalEnd.UTC()}
}

// Equal compares original intervals only. Two occurrences are equal even if
// one of them was moved, cancelled or retitled.
func (o *Occurrence) Equal(other *Occurrence) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.OriginalStart.Equal(other.OriginalStart) && o.OriginalEnd.Equal(other.OriginalEnd)
}

// CompareOccurrences orders by current start, then current end.
func CompareOccurrences(a, b *Occurrence) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return a.End.Compare(b.End)
}

// SortOccurrences sorts in place with CompareOccurrences, keeping the
// relative order of ties.
func SortOccurrences(occs []*Occurrence) {
	slices.SortStableFunc(occs, CompareOccurrences)
}

// Persisted reports whether the occurrence has a durable identity.
func (o *Occurrence) Persisted() bool {
	return o.ID != uuid.Nil
}

// Moved reports whether the current interval differs from the original.
func (o *Occurrence) Moved() bool {
	return !o.Start.Equal(o.OriginalStart) || !o.End.Equal(o.OriginalEnd)
}

// Move changes the current interval. The original interval is kept.
func (o *Occurrence) Move(start, end time.Time) error {
	if !end.After(start) {
		return invalidInterval("occurrence", start, end)
	}
	o.Start = start
	o.End = end
	o.UpdatedOn = time.Now()
	return nil
}

// Cancel marks the occurrence cancelled.
func (o *Occurrence) Cancel() {
	o.Cancelled = true
	o.UpdatedOn = time.Now()
}

// Uncancel clears the cancelled flag.
func (o *Occurrence) Uncancel() {
	o.Cancelled = false
	o.UpdatedOn = time.Now()
}

// Intersects reports whether the current interval touches [start, end].
func (o *Occurrence) Intersects(start, end time.Time) bool {
	return intersects(o.Start, o.End, start, end)
}

func (o *Occurrence) originallyIntersects(start, end time.Time) bool {
	return intersects(o.OriginalStart, o.OriginalEnd, start, end)
}

func intersects(s, e, windowStart, windowEnd time.Time) bool {
	return !s.After(windowEnd) && !e.Before(windowStart)
}

func (o *Occurrence) String() string {
	s := fmt.Sprintf("%s to %s", o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
	if o.Cancelled {
		s += " (cancelled)"
	}
	return s
}
