package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		freq    Frequency
		params  Params
		wantErr bool
	}{
		{name: "plain weekly", freq: Weekly},
		{name: "unknown frequency", freq: "FORTNIGHTLY", wantErr: true},
		{name: "count and until", freq: Daily, params: Params{Count: 3, Until: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, wantErr: true},
		{name: "negative interval", freq: Daily, params: Params{Interval: -1}, wantErr: true},
		{name: "byweekno on monthly", freq: Monthly, params: Params{ByWeekNo: []int{1}}, wantErr: true},
		{name: "byweekno on yearly", freq: Yearly, params: Params{ByWeekNo: []int{1, 20}}},
		{name: "byyearday on daily", freq: Daily, params: Params{ByYearDay: []int{100}}, wantErr: true},
		{name: "bymonthday on weekly", freq: Weekly, params: Params{ByMonthDay: []int{1}}, wantErr: true},
		{name: "bysetpos alone", freq: Monthly, params: Params{BySetPos: []int{-1}}, wantErr: true},
		{name: "bysetpos with byday", freq: Monthly, params: Params{BySetPos: []int{-1}, ByDay: []string{"MO", "TU", "WE", "TH", "FR"}}},
		{name: "ordinal byday on weekly", freq: Weekly, params: Params{ByDay: []string{"+2TU"}}, wantErr: true},
		{name: "ordinal byday on monthly", freq: Monthly, params: Params{ByDay: []string{"+2TU", "-1FR"}}},
		{name: "bad weekday", freq: Weekly, params: Params{ByDay: []string{"XX"}}, wantErr: true},
		{name: "month out of range", freq: Yearly, params: Params{ByMonth: []int{13}}, wantErr: true},
		{name: "unknown timezone", freq: Daily, params: Params{Timezone: "Mars/Olympus"}, wantErr: true},
		{name: "known timezone", freq: Daily, params: Params{Timezone: "US/Pacific"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRule(tt.freq, tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParams_RoundTrip(t *testing.T) {
	tests := []string{
		"INTERVAL=2;BYDAY=MO,WE;TZID=US/Pacific",
		"COUNT=10",
		"UNTIL=20240110T000000Z",
		"BYSETPOS=-1;BYDAY=MO,TU,WE,TH,FR",
		"BYMONTH=1,7;BYMONTHDAY=15",
		"BYHOUR=9,17;BYMINUTE=30;WKST=SU",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			p, err := ParseParams(in)
			require.NoError(t, err)
			assert.Equal(t, in, p.String())
		})
	}
}

func TestParseParams(t *testing.T) {
	t.Run("full rrule value", func(t *testing.T) {
		p, err := ParseParams("RRULE:FREQ=WEEKLY;INTERVAL=2")
		require.NoError(t, err)
		assert.Equal(t, 2, p.Interval)
	})

	t.Run("empty", func(t *testing.T) {
		p, err := ParseParams("  ")
		require.NoError(t, err)
		assert.True(t, p.Empty())
	})

	t.Run("floating until follows tzid", func(t *testing.T) {
		p, err := ParseParams("UNTIL=20150310T080000;TZID=US/Pacific")
		require.NoError(t, err)
		loc, _ := time.LoadLocation("US/Pacific")
		assert.True(t, p.Until.Equal(time.Date(2015, 3, 10, 8, 0, 0, 0, loc)))
	})

	t.Run("date-only until", func(t *testing.T) {
		p, err := ParseParams("UNTIL=20240110")
		require.NoError(t, err)
		assert.True(t, p.Until.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	})

	errorCases := map[string]string{
		"unknown key":    "FOO=1",
		"malformed part": "INTERVAL",
		"bad integer":    "COUNT=x",
		"bad weekday":    "BYDAY=MO,XY",
		"bad timezone":   "TZID=Nowhere/Special",
	}
	for name, in := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParams(in)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestRule_Identity(t *testing.T) {
	r, err := NewRule(Weekly, Params{ByDay: []string{"MO"}})
	require.NoError(t, err)

	id := r.Identity()
	assert.Len(t, id, 32)
	assert.Equal(t, id, r.Identity())

	r.Params.ByDay = []string{"TU"}
	assert.NotEqual(t, id, r.Identity())

	other := *r
	other.ID = "another"
	assert.NotEqual(t, r.Identity(), other.Identity())
}

func TestRule_RRuleString(t *testing.T) {
	r, err := ParseRule("weekly", "INTERVAL=2;BYDAY=MO,WE;TZID=US/Pacific")
	require.NoError(t, err)

	assert.Equal(t, Weekly, r.Frequency)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE", r.RRuleString())
	assert.Equal(t, "US/Pacific", r.Params.Timezone)
	assert.Equal(t, "WEEKLY", r.String())
}

func TestRule_CompileKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)

	r, err := NewRule(Weekly, Params{Timezone: "US/Pacific"})
	require.NoError(t, err)

	// Anchor given in UTC; the rule converts it to Pacific time.
	start := time.Date(2015, 3, 2, 8, 0, 0, 0, loc).UTC()
	rr, err := r.Compile(start)
	require.NoError(t, err)

	got := rr.Between(start, start.AddDate(0, 0, 15), true)
	require.Len(t, got, 3)
	for _, occ := range got {
		local := occ.In(loc)
		assert.Equal(t, 8, local.Hour(), "occurrence %s", local)
	}
	// 2015-03-08 is the spring-forward date, so the UTC offset shifts by an hour.
	assert.Equal(t, 7*24*time.Hour-time.Hour, got[1].Sub(got[0]))
}

func TestFrequency_Valid(t *testing.T) {
	for _, f := range []Frequency{Yearly, Monthly, Weekly, Daily, Hourly, Minutely, Secondly} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, Frequency("weekly").Valid())
}
