package schedule

import (
	"testing"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisted returns a saved copy of the occurrence ev generates at start.
func persisted(ev *Event, start time.Time) *Occurrence {
	o := ev.newOccurrence(start, start.Add(ev.Duration()))
	o.ID = uuid.New()
	return o
}

func dailyEvent(t *testing.T) *Event {
	return mustEvent(t, utc(2015, 1, 1, 10, 0), utc(2015, 1, 1, 11, 0), mustRule(t, recurrence.Daily, recurrence.Params{}))
}

func TestReconciler_Lookup(t *testing.T) {
	ev := dailyEvent(t)
	override := persisted(ev, utc(2015, 1, 5, 10, 0))
	require.NoError(t, override.Move(utc(2015, 1, 5, 14, 0), utc(2015, 1, 5, 15, 0)))
	rc := NewReconciler([]*Occurrence{override})

	candidate := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))
	other := ev.newOccurrence(utc(2015, 1, 6, 10, 0), utc(2015, 1, 6, 11, 0))

	assert.True(t, rc.HasOverride(candidate))
	assert.False(t, rc.HasOverride(other))

	got, err := rc.GetOverride(candidate)
	require.NoError(t, err)
	assert.Same(t, override, got)

	_, err = rc.GetOverride(other)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, rc.Lookup(candidate).IsPresent())
	assert.False(t, rc.Lookup(other).IsPresent())
	assert.Equal(t, 1, rc.Len())
}

func TestReconciler_KeyIgnoresLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ev := dailyEvent(t)
	override := persisted(ev, utc(2015, 1, 5, 10, 0))
	override.OriginalStart = override.OriginalStart.In(loc)
	override.OriginalEnd = override.OriginalEnd.In(loc)
	rc := NewReconciler([]*Occurrence{override})

	candidate := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))
	assert.True(t, rc.HasOverride(candidate))
	assert.True(t, candidate.Equal(override))
}

func TestReconciler_DuplicateOverridesFirstWins(t *testing.T) {
	ev := dailyEvent(t)
	first := persisted(ev, utc(2015, 1, 5, 10, 0))
	second := persisted(ev, utc(2015, 1, 5, 10, 0))

	rc := NewReconciler([]*Occurrence{first, nil, second})
	assert.Equal(t, 1, rc.Len())
	got, err := rc.GetOverride(second)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestMerge_MoveIntoWindow(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)

	moved := persisted(ev, utc(2015, 1, 20, 10, 0))
	require.NoError(t, moved.Move(utc(2015, 1, 5, 12, 0), utc(2015, 1, 5, 13, 0)))
	overrides := []*Occurrence{moved}

	t.Run("original slot outside window", func(t *testing.T) {
		ws, we := utc(2015, 1, 5, 0, 0), utc(2015, 1, 5, 23, 59)
		occs, err := engine.Expand(ev, ws, we, ExpandOptions{Overrides: overrides})
		require.NoError(t, err)
		require.Len(t, occs, 2)
		assert.Equal(t, utc(2015, 1, 5, 10, 0), occs[0].Start)
		assert.Same(t, moved, occs[1])

		rc := NewReconciler(overrides)
		assert.Equal(t, []*Occurrence{moved}, rc.AdditionalInWindow(ws, we))
	})

	t.Run("both slots inside window", func(t *testing.T) {
		ws, we := utc(2015, 1, 1, 0, 0), utc(2015, 1, 31, 23, 59)
		occs, err := engine.Expand(ev, ws, we, ExpandOptions{Overrides: overrides})
		require.NoError(t, err)
		require.Len(t, occs, 31)

		count := 0
		for _, o := range occs {
			if o == moved {
				count++
			}
		}
		assert.Equal(t, 1, count)
		assert.Same(t, moved, occs[19])
		assert.Empty(t, NewReconciler(overrides).AdditionalInWindow(ws, we))
	})
}

func TestMerge_MoveOutOfWindow(t *testing.T) {
	ev := dailyEvent(t)
	moved := persisted(ev, utc(2015, 1, 5, 10, 0))
	require.NoError(t, moved.Move(utc(2015, 2, 10, 10, 0), utc(2015, 2, 10, 11, 0)))

	candidates := []*Occurrence{
		ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0)),
		ev.newOccurrence(utc(2015, 1, 6, 10, 0), utc(2015, 1, 6, 11, 0)),
	}

	occs := Merge(candidates, []*Occurrence{moved}, utc(2015, 1, 5, 0, 0), utc(2015, 1, 6, 23, 59))
	require.Len(t, occs, 1)
	assert.Equal(t, utc(2015, 1, 6, 10, 0), occs[0].Start)
}

func TestMerge_KeepsCancelled(t *testing.T) {
	ev := dailyEvent(t)
	cancelled := persisted(ev, utc(2015, 1, 5, 10, 0))
	cancelled.Cancel()

	candidates := []*Occurrence{
		ev.newOccurrence(utc(2015, 1, 4, 10, 0), utc(2015, 1, 4, 11, 0)),
		ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0)),
	}

	occs := Merge(candidates, []*Occurrence{cancelled}, utc(2015, 1, 4, 0, 0), utc(2015, 1, 5, 23, 59))
	require.Len(t, occs, 2)
	assert.False(t, occs[0].Cancelled)
	assert.True(t, occs[1].Cancelled)
	assert.Same(t, cancelled, occs[1])
}

func TestAdditionalInWindow_StableOrder(t *testing.T) {
	ev := dailyEvent(t)
	var overrides []*Occurrence
	for i, day := range []int{25, 21, 23} {
		o := persisted(ev, utc(2015, 1, day, 10, 0))
		require.NoError(t, o.Move(utc(2015, 1, 3, 12+i, 0), utc(2015, 1, 3, 13+i, 0)))
		overrides = append(overrides, o)
	}

	extra := NewReconciler(overrides).AdditionalInWindow(utc(2015, 1, 3, 0, 0), utc(2015, 1, 3, 23, 59))
	require.Len(t, extra, 3)
	for i := 1; i < len(extra); i++ {
		assert.True(t, extra[i-1].Start.Before(extra[i].Start))
	}
}

func TestReconciler_Nil(t *testing.T) {
	var rc *Reconciler
	ev := dailyEvent(t)
	c := ev.newOccurrence(ev.Start, ev.End)

	assert.False(t, rc.HasOverride(c))
	assert.Zero(t, rc.Len())
	assert.Empty(t, rc.AdditionalInWindow(ev.Start, ev.End))
	assert.Equal(t, []*Occurrence{c}, rc.Merge([]*Occurrence{c}, ev.Start, ev.End))
}
