package recurrence

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_HasOccurrenceInRange(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	// Base event: Daily meeting from 9-10 AM starting Jan 1, 2024
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	duration := time.Hour

	tests := []struct {
		name       string
		rule       *Rule
		rangeStart time.Time
		rangeEnd   time.Time
		expected   bool
	}{
		{
			name:       "Non-recurring event in range",
			rangeStart: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			expected:   true,
		},
		{
			name:       "Non-recurring event out of range",
			rangeStart: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			expected:   false,
		},
		{
			name:       "Daily recurring event with occurrence in range",
			rule:       mustRule(t, Daily, Params{Count: 7}),
			rangeStart: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
			expected:   true,
		},
		{
			name:       "Daily recurring event with no occurrence in range",
			rule:       mustRule(t, Daily, Params{Count: 3}),
			rangeStart: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
			expected:   false,
		},
		{
			name:       "Occurrence overlapping range start",
			rule:       mustRule(t, Daily, Params{}),
			rangeStart: time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 5, 9, 45, 0, 0, time.UTC),
			expected:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.HasOccurrenceInRange(tt.rule, anchor, duration, tt.rangeStart, tt.rangeEnd)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEngine_BetweenIsInclusive(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	rule := mustRule(t, Daily, Params{})
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	got, truncated, err := engine.Between(rule, anchor,
		time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Day())
	assert.Equal(t, 5, got[2].Day())
}

func TestEngine_BetweenTruncates(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultEngineConfig
	config.MaxOccurrences = 4
	engine := NewEngineWithConfig(config, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	defer engine.Close()

	rule := mustRule(t, Hourly, Params{})
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, truncated, err := engine.Between(rule, anchor, anchor, anchor.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, got, 4)
	assert.Contains(t, buf.String(), "expansion truncated")
}

func TestEngine_CompileUsesCache(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	rule := mustRule(t, Weekly, Params{ByDay: []string{"MO"}})
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	first, err := engine.Compile(rule, anchor).Get()
	require.NoError(t, err)
	second, err := engine.Compile(rule, anchor).Get()
	require.NoError(t, err)

	assert.Same(t, first, second)
	stats := engine.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestEngine_DisabledCache(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	defer engine.Close()

	rule := mustRule(t, Daily, Params{})
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	first, _ := engine.Compile(rule, anchor).Get()
	second, _ := engine.Compile(rule, anchor).Get()
	assert.NotSame(t, first, second)
	assert.Equal(t, CacheStats{}, engine.CacheStats())
	assert.False(t, engine.Config().OptimizedGeneration)
}

func TestEngine_CompileNilRule(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	result := engine.Compile(nil, time.Now())
	assert.True(t, result.IsError())
	assert.ErrorIs(t, result.Error(), ErrInvalidRule)
}

func TestRuleFromComponent(t *testing.T) {
	t.Run("no recurrence", func(t *testing.T) {
		comp := ical.NewComponent(ical.CompEvent)
		rule, err := RuleFromComponent(comp)
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("rrule with tzid on dtstart", func(t *testing.T) {
		comp := ical.NewComponent(ical.CompEvent)
		comp.Props.SetText(ical.PropUID, "standup@example.com")
		dtstart := ical.NewProp(ical.PropDateTimeStart)
		dtstart.Value = "20150302T080000"
		dtstart.Params.Set("TZID", "US/Pacific")
		comp.Props.Set(dtstart)
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = "FREQ=WEEKLY;BYDAY=MO;COUNT=4"
		comp.Props.Set(rrule)

		rule, err := RuleFromComponent(comp)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, Weekly, rule.Frequency)
		assert.Equal(t, 4, rule.Params.Count)
		assert.Equal(t, []string{"MO"}, rule.Params.ByDay)
		assert.Equal(t, "US/Pacific", rule.Params.Timezone)
		assert.True(t, strings.Contains(rule.Description, "standup@example.com"))
	})

	t.Run("invalid rrule", func(t *testing.T) {
		comp := ical.NewComponent(ical.CompEvent)
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = "BYDAY=MO"
		comp.Props.Set(rrule)

		_, err := RuleFromComponent(comp)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestSetRuleOnComponent(t *testing.T) {
	comp := ical.NewComponent(ical.CompEvent)
	rule := mustRule(t, Monthly, Params{ByDay: []string{"-1FR"}, Timezone: "US/Pacific"})

	SetRuleOnComponent(comp, rule)
	prop := comp.Props.Get(ical.PropRecurrenceRule)
	require.NotNil(t, prop)
	assert.Equal(t, "FREQ=MONTHLY;BYDAY=-1FR", prop.Value)

	parsed, err := ParseRRule(prop.Value)
	require.NoError(t, err)
	assert.Equal(t, rule.RRuleString(), parsed.RRuleString())

	SetRuleOnComponent(comp, nil)
	assert.Nil(t, comp.Props.Get(ical.PropRecurrenceRule))
}
