package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurrence_EqualityByOriginalInterval(t *testing.T) {
	ev := dailyEvent(t)
	a := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))
	b := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))

	require.NoError(t, b.Move(utc(2015, 1, 7, 9, 0), utc(2015, 1, 7, 10, 0)))
	b.Cancel()
	b.Title = "Different"

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Start, b.Start)

	c := ev.newOccurrence(utc(2015, 1, 6, 10, 0), utc(2015, 1, 6, 11, 0))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestOccurrence_MoveCancel(t *testing.T) {
	ev := dailyEvent(t)
	o := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))
	assert.False(t, o.Moved())
	assert.False(t, o.Persisted())

	err := o.Move(utc(2015, 1, 5, 12, 0), utc(2015, 1, 5, 12, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.False(t, o.Moved())

	require.NoError(t, o.Move(utc(2015, 1, 5, 12, 0), utc(2015, 1, 5, 13, 0)))
	assert.True(t, o.Moved())
	assert.Equal(t, utc(2015, 1, 5, 10, 0), o.OriginalStart)

	o.Cancel()
	assert.True(t, o.Cancelled)
	assert.Contains(t, o.String(), "cancelled")
	o.Uncancel()
	assert.False(t, o.Cancelled)
}

func TestCompareOccurrences(t *testing.T) {
	ev := dailyEvent(t)
	early := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 11, 0))
	shortSame := ev.newOccurrence(utc(2015, 1, 5, 10, 0), utc(2015, 1, 5, 10, 30))
	late := ev.newOccurrence(utc(2015, 1, 6, 10, 0), utc(2015, 1, 6, 11, 0))

	assert.Equal(t, -1, CompareOccurrences(early, late))
	assert.Equal(t, 1, CompareOccurrences(early, shortSame))
	assert.Equal(t, 0, CompareOccurrences(early, early))

	occs := []*Occurrence{late, early, shortSame}
	SortOccurrences(occs)
	assert.Equal(t, []*Occurrence{shortSame, early, late}, occs)
}

func TestError_Is(t *testing.T) {
	err := invalidInterval("event", utc(2015, 1, 2, 0, 0), utc(2015, 1, 1, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "invalid_interval")

	wrapped := &Error{Kind: KindNotFound, Message: "lookup", Err: errors.New("inner")}
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "not_found: lookup: inner", wrapped.Error())
	assert.Equal(t, "rule_exhausted", ErrRuleExhausted.Error())
}

func TestZonePolicy(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	t.Run("coerce into default location", func(t *testing.T) {
		p := ZonePolicy{AllowNaive: true, DefaultLocation: berlin}
		got, err := p.Coerce(Naive(2015, 6, 1, 9, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, berlin, got.Location())
		assert.Equal(t, 9, got.Hour())
	})

	t.Run("zoned instants untouched", func(t *testing.T) {
		in := utc(2015, 6, 1, 9, 0)
		got, err := DefaultZonePolicy.Coerce(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("resolve rejects mixes", func(t *testing.T) {
		a, b := utc(2015, 6, 1, 9, 0), Naive(2015, 6, 1, 9, 0, 0)
		assert.ErrorIs(t, DefaultZonePolicy.Resolve(&a, &b), ErrNaiveInstantComparison)
	})

	t.Run("resolve ignores zero instants", func(t *testing.T) {
		a, zero := Naive(2015, 6, 1, 9, 0, 0), time.Time{}
		assert.NoError(t, DefaultZonePolicy.Resolve(&a, &zero, nil))
	})

	t.Run("naive from keeps wall clock", func(t *testing.T) {
		n := NaiveFrom(time.Date(2015, 6, 1, 9, 30, 0, 0, berlin))
		assert.True(t, IsNaive(n))
		assert.Equal(t, 9, n.Hour())
		assert.Equal(t, 30, n.Minute())
	})
}
