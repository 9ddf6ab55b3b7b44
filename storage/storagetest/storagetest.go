// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("rules", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("shared rule", func(t *testing.T) { testSharedRule(t, newStore(t)) })
	t.Run("hints", func(t *testing.T) { testHints(t, newStore(t)) })
	t.Run("occurrences", func(t *testing.T) { testOccurrences(t, newStore(t)) })
	t.Run("occurrence zones", func(t *testing.T) { testOccurrenceZones(t, newStore(t)) })
	t.Run("fixed offset event", func(t *testing.T) { testFixedOffsetEvent(t, newStore(t)) })
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func dailyEvent(t *testing.T) *schedule.Event {
	rule, err := recurrence.NewRule(recurrence.Daily, recurrence.Params{})
	require.NoError(t, err)
	ev, err := schedule.NewEvent("Daily", utc(2015, 1, 1, 10, 0), utc(2015, 1, 1, 11, 0), rule)
	require.NoError(t, err)
	ev.CalendarID = "work"
	ev.EndRecurringPeriod = mo.Some(utc(2015, 2, 1, 0, 0))
	return ev
}

func testRules(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.GetRule(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))

	rule := &recurrence.Rule{
		Name:        "Every other Monday",
		Description: "standups",
		Frequency:   recurrence.Weekly,
		Params:      recurrence.Params{Interval: 2, ByDay: []string{"MO"}, Timezone: "US/Pacific"},
	}
	require.NoError(t, s.SaveRule(ctx, rule))
	require.NotEmpty(t, rule.ID)

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Description, got.Description)
	assert.Equal(t, rule.RRuleString(), got.RRuleString())
	assert.Equal(t, rule.Identity(), got.Identity())

	bad := &recurrence.Rule{Frequency: "FORTNIGHTLY"}
	assert.True(t, storage.IsType(s.SaveRule(ctx, bad), storage.ErrInvalidInput))
}

func testEvents(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.GetEvent(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))

	ev := dailyEvent(t)
	require.NoError(t, s.CreateEvent(ctx, ev))
	require.NotEmpty(t, ev.ID)
	assert.True(t, storage.IsType(s.CreateEvent(ctx, ev), storage.ErrAlreadyExists))

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.CalendarID, got.CalendarID)
	assert.True(t, got.Start.Equal(ev.Start))
	assert.True(t, got.End.Equal(ev.End))
	require.NotNil(t, got.Rule)
	assert.Equal(t, ev.Rule.Identity(), got.Rule.Identity())
	end, ok := got.EndRecurringPeriod.Get()
	require.True(t, ok)
	assert.True(t, end.Equal(utc(2015, 2, 1, 0, 0)))

	single, err := schedule.NewEvent("Once", utc(2015, 1, 3, 9, 0), utc(2015, 1, 3, 10, 0), nil)
	require.NoError(t, err)
	single.CalendarID = "home"
	require.NoError(t, s.CreateEvent(ctx, single))

	got.Title = "Renamed"
	require.NoError(t, s.UpdateEvent(ctx, got))
	again, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Title)

	missing := dailyEvent(t)
	missing.ID = "nope"
	assert.True(t, storage.IsNotFound(s.UpdateEvent(ctx, missing)))

	all, err := s.ListEvents(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ev.ID, all[0].ID)

	home, err := s.ListEvents(ctx, "home")
	require.NoError(t, err)
	require.Len(t, home, 1)
	assert.Nil(t, home[0].Rule)
	assert.False(t, home[0].EndRecurringPeriod.IsPresent())
}

func testSharedRule(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	a := dailyEvent(t)
	b := dailyEvent(t)
	b.Rule = a.Rule
	require.NoError(t, s.CreateEvent(ctx, a))
	require.NoError(t, s.CreateEvent(ctx, b))

	rule, err := s.GetRule(ctx, a.Rule.ID)
	require.NoError(t, err)
	rule.Params.Interval = 3
	require.NoError(t, s.SaveRule(ctx, rule))

	got, err := s.GetEvent(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Rule.Params.Interval)
}

func testHints(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	ev := dailyEvent(t)
	require.NoError(t, s.CreateEvent(ctx, ev))

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, got.Hint().IsPresent())

	ev.RecordHint(utc(2015, 1, 20, 10, 0), utc(2015, 1, 20, 11, 0))
	payload, err := ev.HintPayload()
	require.NoError(t, err)
	require.NoError(t, s.SaveHint(ctx, ev.ID, payload))

	got, err = s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	h, ok := got.Hint().Get()
	require.True(t, ok)
	assert.True(t, h.Start.Equal(utc(2015, 1, 20, 10, 0)))

	require.NoError(t, s.SaveHint(ctx, ev.ID, []byte("{broken")))
	got, err = s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, got.Hint().IsPresent())

	assert.True(t, storage.IsNotFound(s.SaveHint(ctx, "missing", payload)))
}

func testOccurrences(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	ev := dailyEvent(t)
	require.NoError(t, s.CreateEvent(ctx, ev))

	occs, err := s.FetchPersistedOverrides(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, occs)

	occ := &schedule.Occurrence{
		Event:         ev,
		Start:         utc(2015, 1, 5, 10, 0),
		End:           utc(2015, 1, 5, 11, 0),
		OriginalStart: utc(2015, 1, 5, 10, 0),
		OriginalEnd:   utc(2015, 1, 5, 11, 0),
		Title:         ev.Title,
	}
	require.NoError(t, occ.Move(utc(2015, 1, 5, 14, 0), utc(2015, 1, 5, 15, 0)))
	id, err := s.SaveOccurrence(ctx, occ)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	// Saving the same original interval again updates in place.
	again := &schedule.Occurrence{
		Event:         ev,
		Start:         utc(2015, 1, 5, 16, 0),
		End:           utc(2015, 1, 5, 17, 0),
		OriginalStart: utc(2015, 1, 5, 10, 0),
		OriginalEnd:   utc(2015, 1, 5, 11, 0),
		Cancelled:     true,
	}
	id2, err := s.SaveOccurrence(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	occs, err = s.FetchPersistedOverrides(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, id, occs[0].ID)
	assert.True(t, occs[0].Cancelled)
	assert.True(t, occs[0].Start.Equal(utc(2015, 1, 5, 16, 0)))
	assert.True(t, occs[0].OriginalStart.Equal(utc(2015, 1, 5, 10, 0)))

	got, err := s.GetOccurrence(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Event)
	assert.Equal(t, ev.ID, got.Event.ID)
	assert.True(t, got.Equal(occ))

	_, err = s.GetOccurrence(ctx, uuid.New())
	assert.True(t, storage.IsNotFound(err))

	orphan := &schedule.Occurrence{Start: occ.Start, End: occ.End, OriginalStart: occ.Start, OriginalEnd: occ.End}
	_, err = s.SaveOccurrence(ctx, orphan)
	assert.True(t, storage.IsType(err, storage.ErrInvalidInput))

	_, err = s.FetchPersistedOverrides(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))
}

func testOccurrenceZones(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	pacific, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)

	ev := dailyEvent(t)
	require.NoError(t, s.CreateEvent(ctx, ev))

	start := time.Date(2015, 1, 6, 2, 0, 0, 0, pacific)
	occ := &schedule.Occurrence{
		Event:         ev,
		Start:         start,
		End:           start.Add(time.Hour),
		OriginalStart: utc(2015, 1, 6, 10, 0),
		OriginalEnd:   utc(2015, 1, 6, 11, 0),
	}
	_, err = s.SaveOccurrence(ctx, occ)
	require.NoError(t, err)

	occs, err := s.FetchPersistedOverrides(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].Start.Equal(start))
	assert.Equal(t, "US/Pacific", occs[0].Start.Location().String())
	assert.Equal(t, occ.Key(), occs[0].Key())
}

func testFixedOffsetEvent(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	start, err := time.Parse(time.RFC3339, "2015-01-01T02:00:00+05:00")
	require.NoError(t, err)
	rule, err := recurrence.NewRule(recurrence.Monthly, recurrence.Params{})
	require.NoError(t, err)
	ev, err := schedule.NewEvent("Monthly", start, start.Add(time.Hour), rule)
	require.NoError(t, err)
	require.NoError(t, s.CreateEvent(ctx, ev))

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	_, offset := got.Start.Zone()
	assert.Equal(t, 5*3600, offset)
	assert.Equal(t, 2, got.Start.Hour())

	engine := schedule.NewEngine()
	defer engine.Close()
	windowStart, windowEnd := start.Add(-2*time.Hour), start.AddDate(0, 6, 0)
	want, err := engine.Expand(ev, windowStart, windowEnd, schedule.ExpandOptions{SkipFastPath: true})
	require.NoError(t, err)
	have, err := engine.Expand(got, windowStart, windowEnd, schedule.ExpandOptions{SkipFastPath: true})
	require.NoError(t, err)

	require.Len(t, have, len(want))
	assert.Len(t, have, 7)
	for i := range want {
		assert.True(t, want[i].Start.Equal(have[i].Start))
		assert.Equal(t, 1, have[i].Start.Day())
	}
}
