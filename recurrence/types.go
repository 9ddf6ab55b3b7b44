package recurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the base period of a recurrence rule. Values use the RFC 5545
// FREQ names so they can be stored and exchanged verbatim.
type Frequency string

const (
	Yearly   Frequency = "YEARLY"
	Monthly  Frequency = "MONTHLY"
	Weekly   Frequency = "WEEKLY"
	Daily    Frequency = "DAILY"
	Hourly   Frequency = "HOURLY"
	Minutely Frequency = "MINUTELY"
	Secondly Frequency = "SECONDLY"
)

var frequencies = map[Frequency]rrule.Frequency{
	Yearly:   rrule.YEARLY,
	Monthly:  rrule.MONTHLY,
	Weekly:   rrule.WEEKLY,
	Daily:    rrule.DAILY,
	Hourly:   rrule.HOURLY,
	Minutely: rrule.MINUTELY,
	Secondly: rrule.SECONDLY,
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	_, ok := frequencies[f]
	return ok
}

// ErrInvalidRule is returned when a frequency or parameter set cannot form a
// recurrence rule.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Params holds the optional refinements of a rule. Which fields are allowed
// depends on the frequency; see Rule.Validate.
type Params struct {
	Interval   int       // INTERVAL, 0 means 1
	Count      int       // COUNT, 0 means unbounded
	Until      time.Time // UNTIL, zero means unbounded
	ByDay      []string  // BYDAY, e.g. "MO", "+2TU", "-1FR"
	ByMonth    []int     // BYMONTH
	ByMonthDay []int     // BYMONTHDAY
	ByYearDay  []int     // BYYEARDAY
	ByWeekNo   []int     // BYWEEKNO
	ByHour     []int     // BYHOUR
	ByMinute   []int     // BYMINUTE
	BySecond   []int     // BYSECOND
	BySetPos   []int     // BYSETPOS
	WeekStart  string    // WKST
	// Timezone is an IANA zone name. When set, the rule is evaluated on the
	// wall clock of that zone so that DST transitions keep the local time.
	Timezone string
}

// Empty reports whether no refinement is set.
func (p Params) Empty() bool {
	return p.Interval == 0 && p.Count == 0 && p.Until.IsZero() &&
		len(p.ByDay) == 0 && len(p.ByMonth) == 0 && len(p.ByMonthDay) == 0 &&
		len(p.ByYearDay) == 0 && len(p.ByWeekNo) == 0 && len(p.ByHour) == 0 &&
		len(p.ByMinute) == 0 && len(p.BySecond) == 0 && len(p.BySetPos) == 0 &&
		p.WeekStart == "" && p.Timezone == ""
}
