package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"
)

// Reconciler overlays persisted overrides on generated candidates. It is
// built from a complete snapshot and never changes afterwards, so it may be
// shared by concurrent merges. A nil *Reconciler holds no overrides.
type Reconciler struct {
	byKey     map[Key]*Occurrence
	byCurrent []*Occurrence
}

// NewReconciler indexes overrides by original interval and by current
// interval. When two overrides share an original interval the first wins.
func NewReconciler(overrides []*Occurrence) *Reconciler {
	r := &Reconciler{
		byKey:     make(map[Key]*Occurrence, len(overrides)),
		byCurrent: make([]*Occurrence, 0, len(overrides)),
	}
	for _, o := range overrides {
		if o == nil {
			continue
		}
		k := o.Key()
		if _, dup := r.byKey[k]; dup {
			continue
		}
		r.byKey[k] = o
		r.byCurrent = append(r.byCurrent, o)
	}
	SortOccurrences(r.byCurrent)
	return r
}

// Len returns the number of indexed overrides.
func (r *Reconciler) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byKey)
}

// HasOverride reports whether an override exists for candidate.
func (r *Reconciler) HasOverride(candidate *Occurrence) bool {
	return r.Lookup(candidate).IsPresent()
}

// GetOverride returns the override for candidate or a NotFound error.
func (r *Reconciler) GetOverride(candidate *Occurrence) (*Occurrence, error) {
	o, ok := r.Lookup(candidate).Get()
	if !ok {
		return nil, &Error{
			Kind: KindNotFound,
			Message: fmt.Sprintf("no override for occurrence originally at %s",
				candidate.OriginalStart.Format(time.RFC3339)),
		}
	}
	return o, nil
}

// Lookup returns the override for candidate, if any.
func (r *Reconciler) Lookup(candidate *Occurrence) mo.Option[*Occurrence] {
	if r == nil || candidate == nil {
		return mo.None[*Occurrence]()
	}
	o, ok := r.byKey[candidate.Key()]
	if !ok {
		return mo.None[*Occurrence]()
	}
	return mo.Some(o)
}

// AdditionalInWindow returns overrides that were moved into the window from
// outside it: the current interval intersects the window, the original one
// does not. The result is ordered by current start.
func (r *Reconciler) AdditionalInWindow(windowStart, windowEnd time.Time) []*Occurrence {
	if r == nil {
		return nil
	}
	var out []*Occurrence
	for _, o := range r.byCurrent {
		if o.Start.After(windowEnd) {
			break
		}
		if o.Intersects(windowStart, windowEnd) && !o.originallyIntersects(windowStart, windowEnd) {
			out = append(out, o)
		}
	}
	return out
}

// Merge substitutes overrides for their candidates and appends overrides
// moved into the window. An override moved out of the window removes its
// candidate. Cancelled overrides are kept with their flag set.
func (r *Reconciler) Merge(candidates []*Occurrence, windowStart, windowEnd time.Time) []*Occurrence {
	out := make([]*Occurrence, 0, len(candidates))
	for _, c := range candidates {
		o, err := r.GetOverride(c)
		if err != nil {
			out = append(out, c)
			continue
		}
		if o.Intersects(windowStart, windowEnd) {
			out = append(out, o)
		}
	}
	return append(out, r.AdditionalInWindow(windowStart, windowEnd)...)
}

// substitute applies the override for c when the override still ends after
// the given instant. The second result is false when c was moved away.
func (r *Reconciler) substitute(c *Occurrence, after time.Time) (*Occurrence, bool) {
	o, ok := r.Lookup(c).Get()
	if !ok {
		return c, true
	}
	return o, o.End.After(after)
}

// Merge is a convenience for NewReconciler(overrides).Merge.
func Merge(candidates, overrides []*Occurrence, windowStart, windowEnd time.Time) []*Occurrence {
	return NewReconciler(overrides).Merge(candidates, windowStart, windowEnd)
}

// Overrides returns the indexed overrides ordered by current interval.
func (r *Reconciler) Overrides() []*Occurrence {
	if r == nil {
		return nil
	}
	return slices.Clone(r.byCurrent)
}
