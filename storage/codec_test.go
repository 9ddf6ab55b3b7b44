package storage

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeCodec(t *testing.T) {
	pacific, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       time.Time
		wantZone string
	}{
		{"utc", time.Date(2015, 1, 1, 10, 0, 0, 0, time.UTC), "UTC"},
		{"named zone", time.Date(2015, 3, 9, 8, 0, 0, 0, pacific), "US/Pacific"},
		{"naive", schedule.Naive(2015, 1, 1, 10, 0, 0), "floating"},
		{"parsed offset", mustParse(t, "2015-01-01T02:00:00+05:00"), "+05:00:00"},
		{"unknown zone name", time.Date(2015, 1, 1, 2, 0, 0, 0, time.FixedZone("XST", -(3*3600 + 1800))), "-03:30:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, zone := EncodeTime(tt.in)
			assert.Equal(t, tt.wantZone, zone)

			back, err := DecodeTime(value, zone)
			require.NoError(t, err)
			assert.True(t, back.Equal(tt.in))
			assert.Equal(t, tt.in.Hour(), back.Hour())
			assert.Equal(t, schedule.IsNaive(tt.in), schedule.IsNaive(back))
			_, wantOffset := tt.in.Zone()
			_, gotOffset := back.Zone()
			assert.Equal(t, wantOffset, gotOffset)
		})
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func TestEncodeTime_CanonicalText(t *testing.T) {
	pacific, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)

	local := time.Date(2015, 3, 9, 8, 0, 0, 0, pacific)
	a, _ := EncodeTime(local)
	b, _ := EncodeTime(local.UTC())
	assert.Equal(t, a, b)
}

func TestDecodeTime_Errors(t *testing.T) {
	_, err := DecodeTime("yesterday", "UTC")
	assert.Error(t, err)

	_, err = DecodeTime("2015-01-01T10:00:00Z", "Nowhere/Special")
	assert.Error(t, err)

	_, err = DecodeTime("2015-01-01T10:00:00Z", "+5h")
	assert.Error(t, err)
}

func TestPrepareEvent(t *testing.T) {
	start := time.Date(2015, 1, 1, 10, 0, 0, 0, time.UTC)
	ev := &schedule.Event{Title: "x", Start: start, End: start.Add(time.Hour)}

	require.NoError(t, PrepareEvent(ev, true))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedOn.IsZero())

	bad := &schedule.Event{Start: start, End: start}
	assert.True(t, IsType(PrepareEvent(bad, true), ErrInvalidInput))

	anon := &schedule.Event{Start: start, End: start.Add(time.Hour)}
	assert.True(t, IsType(PrepareEvent(anon, false), ErrInvalidInput))
}

func TestError(t *testing.T) {
	err := NotFound("event", "abc")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, `not_found: event "abc" not found`, err.Error())
	assert.False(t, IsNotFound(AlreadyExists("event", "abc")))
}

func TestEncodeTime_SortsChronologically(t *testing.T) {
	base := time.Date(2015, 1, 1, 10, 0, 0, 0, time.UTC)
	a, _ := EncodeTime(base)
	b, _ := EncodeTime(base.Add(500 * time.Millisecond))
	c, _ := EncodeTime(base.Add(time.Second))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
