package schedule

import (
	"testing"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, engine *Engine, ev *Event, after time.Time, rc *Reconciler, limit int) []*Occurrence {
	t.Helper()
	seq, err := engine.OccurrencesAfter(ev, after, rc)
	require.NoError(t, err)
	var out []*Occurrence
	for o := range seq {
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

func TestOccurrencesAfter_RecurrenceEndTruncates(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)
	ev.EndRecurringPeriod = mo.Some(ev.Start.AddDate(0, 0, 10))

	occs := collect(t, engine, ev, ev.Start, nil, 100)
	require.Len(t, occs, 11)
	assert.Equal(t, ev.Start, occs[0].Start)
	assert.Equal(t, ev.Start.AddDate(0, 0, 10), occs[10].Start)
}

func TestOccurrencesAfter_RuleExhausted(t *testing.T) {
	engine := newTestEngine(t)
	ev := mustEvent(t, utc(2015, 1, 1, 10, 0), utc(2015, 1, 1, 11, 0), mustRule(t, recurrence.Weekly, recurrence.Params{Count: 3}))

	occs := collect(t, engine, ev, ev.Start, nil, 100)
	assert.Equal(t, []time.Time{utc(2015, 1, 1, 10, 0), utc(2015, 1, 8, 10, 0), utc(2015, 1, 15, 10, 0)}, starts(occs))
}

func TestOccurrencesAfter_SkipsEndedOccurrences(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)

	occs := collect(t, engine, ev, utc(2015, 1, 4, 10, 30), nil, 3)
	assert.Equal(t, []time.Time{utc(2015, 1, 4, 10, 0), utc(2015, 1, 5, 10, 0), utc(2015, 1, 6, 10, 0)}, starts(occs))

	occs = collect(t, engine, ev, utc(2015, 1, 4, 11, 0), nil, 1)
	assert.Equal(t, utc(2015, 1, 5, 10, 0), occs[0].Start)
}

func TestOccurrencesAfter_EarlyStopAndRestart(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)

	seq, err := engine.OccurrencesAfter(ev, ev.Start, nil)
	require.NoError(t, err)

	var first []time.Time
	for o := range seq {
		first = append(first, o.Start)
		if len(first) == 5 {
			break
		}
	}

	var again []time.Time
	for o := range seq {
		again = append(again, o.Start)
		if len(again) == 2 {
			break
		}
	}

	require.Len(t, first, 5)
	assert.Equal(t, first[:2], again)
}

func TestOccurrencesAfter_NonRecurring(t *testing.T) {
	engine := newTestEngine(t)
	ev := mustEvent(t, utc(2015, 1, 1, 10, 0), utc(2015, 1, 1, 11, 0), nil)

	assert.Len(t, collect(t, engine, ev, utc(2015, 1, 1, 10, 30), nil, 10), 1)
	assert.Empty(t, collect(t, engine, ev, utc(2015, 1, 1, 11, 0), nil, 10))
}

func TestOccurrencesAfter_AppliesOverrides(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)

	retitled := persisted(ev, utc(2015, 1, 2, 10, 0))
	retitled.Title = "Moved standup"
	require.NoError(t, retitled.Move(utc(2015, 1, 2, 15, 0), utc(2015, 1, 2, 16, 0)))

	movedEarlier := persisted(ev, utc(2015, 1, 3, 10, 0))
	require.NoError(t, movedEarlier.Move(utc(2014, 12, 20, 10, 0), utc(2014, 12, 20, 11, 0)))

	rc := NewReconciler([]*Occurrence{retitled, movedEarlier})
	occs := collect(t, engine, ev, ev.Start, rc, 3)

	require.Len(t, occs, 3)
	assert.Equal(t, utc(2015, 1, 1, 10, 0), occs[0].Start)
	assert.Same(t, retitled, occs[1])
	assert.Equal(t, "Moved standup", occs[1].Title)
	assert.Equal(t, utc(2015, 1, 4, 10, 0), occs[2].Start)
}

func TestOccurrencesAfter_ZeroAfterMeansNow(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)
	ev := mustEvent(t, now.AddDate(0, 0, -3), now.AddDate(0, 0, -3).Add(time.Hour), mustRule(t, recurrence.Daily, recurrence.Params{}))

	occs := collect(t, engine, ev, time.Time{}, nil, 1)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].End.After(now))
	assert.False(t, occs[0].Start.After(now.Add(time.Hour)))
}

func TestOccurrencesAfter_InvalidEvent(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.OccurrencesAfter(&Event{Start: utc(2015, 1, 1, 0, 0), End: utc(2014, 1, 1, 0, 0)}, utc(2015, 1, 1, 0, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
