// Package eventfile reads event definitions from YAML or iCalendar files and
// writes expansions back out as iCalendar.
package eventfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"gopkg.in/yaml.v3"
)

// File is the decoded content of an event file.
type File struct {
	Rules  []*recurrence.Rule
	Events []*schedule.Event
	// Overrides holds saved-state occurrences by event ID.
	Overrides map[string][]*schedule.Occurrence
}

// Load reads path, choosing the format from its extension.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	case ".ics", ".ical":
		return ParseICS(f)
	default:
		return nil, fmt.Errorf("unsupported event file %q", path)
	}
}

// ParseICS decodes a VCALENDAR. Master VEVENTs become events and VEVENTs
// with a RECURRENCE-ID become overrides.
func ParseICS(r io.Reader) (*File, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	events, err := schedule.EventsFromCalendar(cal)
	if err != nil {
		return nil, err
	}
	overrides, err := schedule.OverridesFromCalendar(cal, events)
	if err != nil {
		return nil, err
	}

	out := &File{Events: events, Overrides: overrides}
	seen := make(map[*recurrence.Rule]bool)
	for _, ev := range events {
		if ev.Rule != nil && !seen[ev.Rule] {
			seen[ev.Rule] = true
			out.Rules = append(out.Rules, ev.Rule)
		}
	}
	return out, nil
}

// Import stores rules, events and overrides.
func (f *File) Import(ctx context.Context, store storage.Storage) error {
	for _, rule := range f.Rules {
		if err := store.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("save rule %q: %w", rule.Name, err)
		}
	}
	for _, ev := range f.Events {
		if err := store.CreateEvent(ctx, ev); err != nil {
			return fmt.Errorf("create event %q: %w", ev.Title, err)
		}
		for _, occ := range f.Overrides[ev.ID] {
			id, err := store.SaveOccurrence(ctx, occ)
			if err != nil {
				return fmt.Errorf("save occurrence %s: %w", occ, err)
			}
			occ.ID = id
		}
	}
	return nil
}

// WriteICS encodes events and their occurrences as one VCALENDAR.
func WriteICS(w io.Writer, events []*schedule.Event, occurrences map[string][]*schedule.Occurrence) error {
	var children []*ical.Component
	for _, ev := range events {
		children = append(children, schedule.EventComponent(ev))
		for _, occ := range occurrences[ev.ID] {
			children = append(children, schedule.OccurrenceComponent(occ))
		}
	}
	if err := ical.NewEncoder(w).Encode(schedule.NewCalendar(children...)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// YAML document model.

type yamlDoc struct {
	Rules  []yamlRule  `yaml:"rules"`
	Events []yamlEvent `yaml:"events"`
}

type yamlRule struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Frequency   string `yaml:"frequency"`
	// Params uses RRULE syntax, e.g. "INTERVAL=2;BYDAY=MO,WE".
	Params string `yaml:"params"`
}

type yamlEvent struct {
	ID          string `yaml:"id"`
	Calendar    string `yaml:"calendar"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// Timezone applies to start, end and overrides without an offset.
	// Without it such values are floating.
	Timezone string `yaml:"timezone"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	// Rule references a top-level rule by ID. RRule defines one inline.
	Rule  string    `yaml:"rule"`
	RRule *yamlRule `yaml:"rrule"`
	Until string    `yaml:"until"`

	Overrides []yamlOverride `yaml:"overrides"`
}

type yamlOverride struct {
	OriginalStart string `yaml:"original_start"`
	Start         string `yaml:"start"`
	End           string `yaml:"end"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	Cancelled     bool   `yaml:"cancelled"`
}

// ParseYAML decodes the YAML event format.
func ParseYAML(r io.Reader) (*File, error) {
	var doc yamlDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	out := &File{Overrides: make(map[string][]*schedule.Occurrence)}
	rules := make(map[string]*recurrence.Rule, len(doc.Rules))
	for i, yr := range doc.Rules {
		if yr.ID == "" {
			return nil, fmt.Errorf("rules[%d]: id is required", i)
		}
		if _, dup := rules[yr.ID]; dup {
			return nil, fmt.Errorf("rules[%d]: duplicate id %q", i, yr.ID)
		}
		rule, err := yr.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules[rule.ID] = rule
		out.Rules = append(out.Rules, rule)
	}

	for i, ye := range doc.Events {
		ev, err := ye.toEvent(rules)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if ye.Until != "" && ev.Rule == nil {
			return nil, fmt.Errorf("events[%d]: until needs a rule", i)
		}
		if len(ye.Overrides) > 0 && ev.ID == "" {
			return nil, fmt.Errorf("events[%d]: overrides need an event id", i)
		}
		if ev.Rule != nil && ye.RRule != nil {
			out.Rules = append(out.Rules, ev.Rule)
		}
		for j, yo := range ye.Overrides {
			occ, err := yo.toOccurrence(ev, ye.Timezone)
			if err != nil {
				return nil, fmt.Errorf("events[%d].overrides[%d]: %w", i, j, err)
			}
			out.Overrides[ev.ID] = append(out.Overrides[ev.ID], occ)
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func (yr yamlRule) toRule() (*recurrence.Rule, error) {
	rule, err := recurrence.ParseRule(yr.Frequency, yr.Params)
	if err != nil {
		return nil, err
	}
	if yr.ID != "" {
		rule.ID = yr.ID
	}
	if yr.Name != "" {
		rule.Name = yr.Name
	}
	rule.Description = yr.Description
	return rule, nil
}

func (ye yamlEvent) toEvent(rules map[string]*recurrence.Rule) (*schedule.Event, error) {
	start, err := ParseTime(ye.Start, ye.Timezone)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTime(ye.End, ye.Timezone)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	var rule *recurrence.Rule
	switch {
	case ye.Rule != "" && ye.RRule != nil:
		return nil, errors.New("rule and rrule are mutually exclusive")
	case ye.Rule != "":
		var ok bool
		if rule, ok = rules[ye.Rule]; !ok {
			return nil, fmt.Errorf("unknown rule %q", ye.Rule)
		}
	case ye.RRule != nil:
		if rule, err = ye.RRule.toRule(); err != nil {
			return nil, fmt.Errorf("rrule: %w", err)
		}
	}

	ev, err := schedule.NewEvent(ye.Title, start, end, rule)
	if err != nil {
		return nil, err
	}
	ev.ID = ye.ID
	ev.CalendarID = ye.Calendar
	ev.Description = ye.Description
	if ye.Until != "" && rule != nil {
		until, err := ParseTime(ye.Until, ye.Timezone)
		if err != nil {
			return nil, fmt.Errorf("until: %w", err)
		}
		ev.EndRecurringPeriod = mo.Some(until)
	}
	return ev, nil
}

func (yo yamlOverride) toOccurrence(ev *schedule.Event, tz string) (*schedule.Occurrence, error) {
	original, err := ParseTime(yo.OriginalStart, tz)
	if err != nil {
		return nil, fmt.Errorf("original_start: %w", err)
	}
	occ := &schedule.Occurrence{
		Event:         ev,
		OriginalStart: original,
		OriginalEnd:   original.Add(ev.Duration()),
		Start:         original,
		End:           original.Add(ev.Duration()),
		Title:         ev.Title,
		Description:   ev.Description,
		Cancelled:     yo.Cancelled,
	}
	if yo.Title != "" {
		occ.Title = yo.Title
	}
	if yo.Description != "" {
		occ.Description = yo.Description
	}
	if yo.Start != "" || yo.End != "" {
		start, end := occ.Start, occ.End
		if yo.Start != "" {
			if start, err = ParseTime(yo.Start, tz); err != nil {
				return nil, fmt.Errorf("start: %w", err)
			}
			end = start.Add(ev.Duration())
		}
		if yo.End != "" {
			if end, err = ParseTime(yo.End, tz); err != nil {
				return nil, fmt.Errorf("end: %w", err)
			}
		}
		if err := occ.Move(start, end); err != nil {
			return nil, err
		}
	}
	return occ, nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 values, which keep their offset, and local
// values, which are read in tz or become naive when tz is empty.
func ParseTime(value, tz string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("missing time")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	loc := schedule.Floating
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return time.Time{}, fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
