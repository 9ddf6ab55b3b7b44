package recurrence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

const untilFormat = "20060102T150405Z"

// Rule is a reusable recurrence definition. Events reference rules, they do
// not own them, so one rule may drive many events.
type Rule struct {
	ID          string
	Name        string
	Description string
	Frequency   Frequency
	Params      Params
}

// NewRule validates freq and params and returns a rule with a fresh ID.
func NewRule(freq Frequency, params Params) (*Rule, error) {
	r := &Rule{
		ID:        uuid.NewString(),
		Name:      string(freq),
		Frequency: freq,
		Params:    params,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseRule builds a rule from a frequency name and a serialized parameter
// string as produced by Params.String.
func ParseRule(freq, params string) (*Rule, error) {
	p, err := ParseParams(params)
	if err != nil {
		return nil, err
	}
	return NewRule(Frequency(strings.ToUpper(strings.TrimSpace(freq))), p)
}

// Validate checks the frequency and the frequency-dependent constraints of
// RFC 5545 section 3.3.10.
func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", ErrInvalidRule)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
	p := r.Params
	if p.Interval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidRule)
	}
	if p.Count < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidRule)
	}
	if p.Count > 0 && !p.Until.IsZero() {
		return fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	}
	if len(p.ByWeekNo) > 0 && r.Frequency != Yearly {
		return fmt.Errorf("%w: BYWEEKNO requires FREQ=YEARLY", ErrInvalidRule)
	}
	if len(p.ByYearDay) > 0 {
		switch r.Frequency {
		case Daily, Weekly, Monthly:
			return fmt.Errorf("%w: BYYEARDAY not allowed with FREQ=%s", ErrInvalidRule, r.Frequency)
		}
	}
	if len(p.ByMonthDay) > 0 && r.Frequency == Weekly {
		return fmt.Errorf("%w: BYMONTHDAY not allowed with FREQ=WEEKLY", ErrInvalidRule)
	}
	if len(p.BySetPos) > 0 && !p.hasByRule() {
		return fmt.Errorf("%w: BYSETPOS requires another BYxxx part", ErrInvalidRule)
	}
	weekdays, err := parseWeekdays(p.ByDay)
	if err != nil {
		return err
	}
	for _, wd := range weekdays {
		if wd.N() == 0 {
			continue
		}
		if r.Frequency != Monthly && r.Frequency != Yearly {
			return fmt.Errorf("%w: ordinal BYDAY requires MONTHLY or YEARLY", ErrInvalidRule)
		}
		if r.Frequency == Yearly && len(p.ByWeekNo) > 0 {
			return fmt.Errorf("%w: ordinal BYDAY not allowed with BYWEEKNO", ErrInvalidRule)
		}
	}
	if _, err := r.location(); err != nil {
		return err
	}

	// rrule-go checks the numeric bounds of every BYxxx list.
	opt, err := r.ROption(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return err
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

func (p Params) hasByRule() bool {
	return len(p.ByDay) > 0 || len(p.ByMonth) > 0 || len(p.ByMonthDay) > 0 ||
		len(p.ByYearDay) > 0 || len(p.ByWeekNo) > 0 || len(p.ByHour) > 0 ||
		len(p.ByMinute) > 0 || len(p.BySecond) > 0
}

// Identity fingerprints the rule ID together with its frequency and
// parameters, so editing a rule in place yields a new identity.
func (r *Rule) Identity() string {
	sum := sha256.Sum256([]byte(r.ID + "|" + string(r.Frequency) + "|" + r.Params.String()))
	return hex.EncodeToString(sum[:16])
}

// Location returns the zone the rule is evaluated in, or nil when the rule
// follows the anchor's own location.
func (r *Rule) Location() *time.Location {
	loc, _ := r.location()
	return loc
}

func (r *Rule) location() (*time.Location, error) {
	if r.Params.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(r.Params.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRule, r.Params.Timezone, err)
	}
	return loc, nil
}

// ROption translates the rule into rrule-go options anchored at dtstart.
func (r *Rule) ROption(dtstart time.Time) (rrule.ROption, error) {
	freq, ok := frequencies[r.Frequency]
	if !ok {
		return rrule.ROption{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
	loc, err := r.location()
	if err != nil {
		return rrule.ROption{}, err
	}
	if loc != nil {
		dtstart = dtstart.In(loc)
	}
	weekdays, err := parseWeekdays(r.Params.ByDay)
	if err != nil {
		return rrule.ROption{}, err
	}
	opt := rrule.ROption{
		Freq:       freq,
		Dtstart:    dtstart,
		Interval:   r.Params.Interval,
		Count:      r.Params.Count,
		Until:      r.Params.Until,
		Bysetpos:   r.Params.BySetPos,
		Bymonth:    r.Params.ByMonth,
		Bymonthday: r.Params.ByMonthDay,
		Byyearday:  r.Params.ByYearDay,
		Byweekno:   r.Params.ByWeekNo,
		Byweekday:  weekdays,
		Byhour:     r.Params.ByHour,
		Byminute:   r.Params.ByMinute,
		Bysecond:   r.Params.BySecond,
	}
	if r.Params.WeekStart != "" {
		wkst, err := parseWeekday(r.Params.WeekStart)
		if err != nil {
			return rrule.ROption{}, err
		}
		opt.Wkst = wkst
	}
	return opt, nil
}

// Compile builds an rrule-go rule anchored at dtstart.
func (r *Rule) Compile(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return rr, nil
}

// RRuleString renders the rule as an RFC 5545 RRULE value, without DTSTART
// and without the TZID extension.
func (r *Rule) RRuleString() string {
	parts := []string{"FREQ=" + string(r.Frequency)}
	p := r.Params
	p.Timezone = ""
	if s := p.String(); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ";")
}

func (r *Rule) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.RRuleString()
}

// String serializes the parameters in RRULE syntax, with an extra TZID key
// for Timezone. The output is accepted by ParseParams.
func (p Params) String() string {
	var parts []string
	if p.Interval != 0 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(p.Interval))
	}
	if p.Count != 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(p.Count))
	}
	if !p.Until.IsZero() {
		parts = append(parts, "UNTIL="+p.Until.UTC().Format(untilFormat))
	}
	parts = appendInts(parts, "BYSETPOS", p.BySetPos)
	parts = appendInts(parts, "BYMONTH", p.ByMonth)
	parts = appendInts(parts, "BYMONTHDAY", p.ByMonthDay)
	parts = appendInts(parts, "BYYEARDAY", p.ByYearDay)
	parts = appendInts(parts, "BYWEEKNO", p.ByWeekNo)
	if len(p.ByDay) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(p.ByDay, ","))
	}
	parts = appendInts(parts, "BYHOUR", p.ByHour)
	parts = appendInts(parts, "BYMINUTE", p.ByMinute)
	parts = appendInts(parts, "BYSECOND", p.BySecond)
	if p.WeekStart != "" {
		parts = append(parts, "WKST="+p.WeekStart)
	}
	if p.Timezone != "" {
		parts = append(parts, "TZID="+p.Timezone)
	}
	return strings.Join(parts, ";")
}

func appendInts(parts []string, key string, values []int) []string {
	if len(values) == 0 {
		return parts
	}
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.Itoa(v)
	}
	return append(parts, key+"="+strings.Join(strs, ","))
}

// ParseParams parses the serialized form produced by Params.String. A
// leading FREQ part is tolerated and ignored so full RRULE values are
// accepted too.
func ParseParams(s string) (Params, error) {
	var p Params
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	if s == "" {
		return p, nil
	}

	kv := make(map[string]string)
	var order []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || value == "" {
			return p, fmt.Errorf("%w: malformed parameter %q", ErrInvalidRule, part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		kv[key] = strings.TrimSpace(value)
		order = append(order, key)
	}

	// TZID decides how a floating UNTIL is read, so resolve it first.
	untilLoc := time.UTC
	if tz, ok := kv["TZID"]; ok {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return p, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRule, tz, err)
		}
		p.Timezone = tz
		untilLoc = loc
	}

	var err error
	for _, key := range order {
		value := kv[key]
		switch key {
		case "FREQ", "TZID":
		case "INTERVAL":
			p.Interval, err = strconv.Atoi(value)
		case "COUNT":
			p.Count, err = strconv.Atoi(value)
		case "UNTIL":
			p.Until, err = parseUntil(value, untilLoc)
		case "BYSETPOS":
			p.BySetPos, err = parseInts(value)
		case "BYMONTH":
			p.ByMonth, err = parseInts(value)
		case "BYMONTHDAY":
			p.ByMonthDay, err = parseInts(value)
		case "BYYEARDAY":
			p.ByYearDay, err = parseInts(value)
		case "BYWEEKNO":
			p.ByWeekNo, err = parseInts(value)
		case "BYDAY":
			p.ByDay = strings.Split(strings.ToUpper(value), ",")
			_, err = parseWeekdays(p.ByDay)
		case "BYHOUR":
			p.ByHour, err = parseInts(value)
		case "BYMINUTE":
			p.ByMinute, err = parseInts(value)
		case "BYSECOND":
			p.BySecond, err = parseInts(value)
		case "WKST":
			p.WeekStart = strings.ToUpper(value)
			_, err = parseWeekday(p.WeekStart)
		default:
			return p, fmt.Errorf("%w: unknown parameter %q", ErrInvalidRule, key)
		}
		if err != nil {
			return p, fmt.Errorf("%w: %s: %v", ErrInvalidRule, key, err)
		}
	}
	return p, nil
}

func parseUntil(value string, loc *time.Location) (time.Time, error) {
	switch len(value) {
	case len("20060102"):
		return time.ParseInLocation("20060102", value, loc)
	case len("20060102T150405"):
		return time.ParseInLocation("20060102T150405", value, loc)
	default:
		return time.Parse(untilFormat, value)
	}
}

func parseInts(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO, "TU": rrule.TU, "WE": rrule.WE, "TH": rrule.TH,
	"FR": rrule.FR, "SA": rrule.SA, "SU": rrule.SU,
}

// parseWeekday accepts "MO" as well as ordinal forms like "+2TU" or "-1FR".
func parseWeekday(s string) (rrule.Weekday, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return rrule.Weekday{}, fmt.Errorf("%w: weekday %q", ErrInvalidRule, s)
	}
	day, ok := weekdays[s[len(s)-2:]]
	if !ok {
		return rrule.Weekday{}, fmt.Errorf("%w: weekday %q", ErrInvalidRule, s)
	}
	if prefix := s[:len(s)-2]; prefix != "" {
		n, err := strconv.Atoi(prefix)
		if err != nil || n == 0 || n < -53 || n > 53 {
			return rrule.Weekday{}, fmt.Errorf("%w: weekday %q", ErrInvalidRule, s)
		}
		return day.Nth(n), nil
	}
	return day, nil
}

func parseWeekdays(values []string) ([]rrule.Weekday, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]rrule.Weekday, 0, len(values))
	for _, v := range values {
		wd, err := parseWeekday(v)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}
