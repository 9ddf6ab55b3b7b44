package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHint_RecordAndValidate(t *testing.T) {
	ev := dailyEvent(t)
	assert.False(t, ev.Hint().IsPresent())

	// At or before the template start nothing is recorded.
	ev.RecordHint(ev.Start, ev.End)
	assert.False(t, ev.Hint().IsPresent())

	ev.RecordHint(utc(2015, 3, 1, 10, 0), utc(2015, 3, 1, 11, 0))
	h, ok := ev.Hint().Get()
	require.True(t, ok)
	assert.Equal(t, utc(2015, 3, 1, 10, 0), h.Anchor)
	assert.Equal(t, ev.Start, h.TemplateStart)
}

func TestHint_InvalidatedByChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ev *Event)
	}{
		{"start moved", func(ev *Event) { ev.Start = ev.Start.Add(time.Hour); ev.End = ev.End.Add(time.Hour) }},
		{"rule edited", func(ev *Event) { ev.Rule.Params.Interval = 2 }},
		{"rule replaced", func(ev *Event) {
			r, _ := recurrence.NewRule(recurrence.Daily, recurrence.Params{})
			ev.Rule = r
		}},
		{"rule removed", func(ev *Event) { ev.Rule = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := dailyEvent(t)
			ev.RecordHint(utc(2015, 3, 1, 10, 0), utc(2015, 3, 1, 11, 0))
			require.True(t, ev.Hint().IsPresent())

			tt.mutate(ev)
			assert.False(t, ev.Hint().IsPresent())
		})
	}
}

func TestHint_PayloadRoundTrip(t *testing.T) {
	ev := dailyEvent(t)

	payload, err := ev.HintPayload()
	require.NoError(t, err)
	assert.Nil(t, payload)

	ev.RecordHint(utc(2015, 3, 1, 10, 0), utc(2015, 3, 1, 11, 0))
	payload, err = ev.HintPayload()
	require.NoError(t, err)

	restored := mustEvent(t, ev.Start, ev.End, ev.Rule)
	require.NoError(t, restored.RestoreHint(payload))

	want, _ := ev.Hint().Get()
	got, ok := restored.Hint().Get()
	require.True(t, ok)
	assert.True(t, want.Anchor.Equal(got.Anchor))
	assert.True(t, want.TemplateStart.Equal(got.TemplateStart))
	assert.True(t, want.Start.Equal(got.Start))
	assert.True(t, want.End.Equal(got.End))
	assert.Equal(t, want.RuleIdentity, got.RuleIdentity)
}

func TestHint_CorruptedPayloadIsAbsent(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)
	ev.RecordHint(utc(2015, 3, 1, 10, 0), utc(2015, 3, 1, 11, 0))

	err := ev.RestoreHint([]byte(`{"anchor": 12`))
	assert.Error(t, err)
	assert.False(t, ev.Hint().IsPresent())

	// Well formed but recorded for another rule: ignored.
	require.NoError(t, ev.RestoreHint([]byte(`{"anchor":"2015-03-01T10:00:00Z","template_start":"2015-01-01T10:00:00Z","rule_identity":"bogus","start":"2015-03-01T10:00:00Z","end":"2015-03-01T11:00:00Z"}`)))
	assert.False(t, ev.Hint().IsPresent())

	occs, err := engine.Expand(ev, utc(2015, 4, 1, 0, 0), utc(2015, 4, 2, 0, 0), ExpandOptions{})
	require.NoError(t, err)
	assert.Len(t, occs, 1)

	require.NoError(t, ev.RestoreHint(nil))
	assert.False(t, ev.Hint().IsPresent())
}

func TestHint_ConcurrentAccess(t *testing.T) {
	engine := newTestEngine(t)
	ev := dailyEvent(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ws := utc(2015, time.Month(1+(i+j)%12), 1, 0, 0)
				fast, err := engine.Expand(ev, ws, ws.AddDate(0, 0, 7), ExpandOptions{})
				if !assert.NoError(t, err) {
					return
				}
				slow, err := engine.Expand(ev, ws, ws.AddDate(0, 0, 7), ExpandOptions{SkipFastPath: true})
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, starts(slow), starts(fast))
			}
		}(i)
	}
	wg.Wait()
}

func TestEvent_CloneSharesHint(t *testing.T) {
	ev := dailyEvent(t)
	ev.RecordHint(utc(2015, 3, 1, 10, 0), utc(2015, 3, 1, 11, 0))

	c := ev.Clone()
	assert.True(t, c.Hint().IsPresent())
	c.ClearHint()
	assert.False(t, c.Hint().IsPresent())
	assert.True(t, ev.Hint().IsPresent())
}
