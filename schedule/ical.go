package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/emersion/go-ical"
)

const (
	dateTimeFormat = "20060102T150405"
	prodID         = "-//libschedule//schedule//EN"

	propRecurrenceID = "RECURRENCE-ID"
)

// EventFromComponent builds an event from a VEVENT. Floating DTSTART and
// DTEND values become naive instants. Without DTEND the DURATION is used,
// and an all-day event lasts one day.
func EventFromComponent(comp *ical.Component) (*Event, error) {
	if comp.Name != ical.CompEvent {
		return nil, fmt.Errorf("expected %s, got %s", ical.CompEvent, comp.Name)
	}

	start, err := comp.Props.DateTime(ical.PropDateTimeStart, Floating)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DTSTART: %w", err)
	}
	if start.IsZero() {
		return nil, errors.New("event has no DTSTART")
	}

	var end time.Time
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if end, err = dtend.DateTime(Floating); err != nil {
			return nil, fmt.Errorf("failed to parse DTEND: %w", err)
		}
	} else if dur := comp.Props.Get(ical.PropDuration); dur != nil {
		d, err := dur.Duration()
		if err != nil {
			return nil, fmt.Errorf("failed to parse DURATION: %w", err)
		}
		end = start.Add(d)
	} else if isAllDay(comp) {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start
	}

	rule, err := recurrence.RuleFromComponent(comp)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Start: start,
		End:   end,
		Rule:  rule,
	}
	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		ev.ID = uid.Value
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		ev.Title = summary.Value
	}
	if desc := comp.Props.Get(ical.PropDescription); desc != nil {
		ev.Description = desc.Value
	}
	if dtstamp, err := comp.Props.DateTime(ical.PropDateTimeStamp, time.UTC); err == nil && !dtstamp.IsZero() {
		ev.CreatedOn = dtstamp
		ev.UpdatedOn = dtstamp
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func isAllDay(comp *ical.Component) bool {
	prop := comp.Props.Get(ical.PropDateTimeStart)
	return prop != nil && strings.EqualFold(prop.Params.Get("VALUE"), "DATE")
}

// EventsFromCalendar converts every VEVENT of cal. Components carrying a
// RECURRENCE-ID are exceptions to a master event and are skipped.
func EventsFromCalendar(cal *ical.Calendar) ([]*Event, error) {
	var events []*Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent || comp.Props.Get(propRecurrenceID) != nil {
			continue
		}
		ev, err := EventFromComponent(comp)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// OverrideFromComponent builds an override of ev from a VEVENT carrying a
// RECURRENCE-ID. The result has no identity until it is saved.
func OverrideFromComponent(comp *ical.Component, ev *Event) (*Occurrence, error) {
	original, err := comp.Props.DateTime(propRecurrenceID, Floating)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RECURRENCE-ID: %w", err)
	}
	if original.IsZero() {
		return nil, errors.New("component has no RECURRENCE-ID")
	}

	occ := ev.newOccurrence(original, original.Add(ev.Duration()))
	if dtstart := comp.Props.Get(ical.PropDateTimeStart); dtstart != nil {
		if occ.Start, err = dtstart.DateTime(Floating); err != nil {
			return nil, fmt.Errorf("failed to parse DTSTART: %w", err)
		}
		occ.End = occ.Start.Add(ev.Duration())
	}
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if occ.End, err = dtend.DateTime(Floating); err != nil {
			return nil, fmt.Errorf("failed to parse DTEND: %w", err)
		}
	} else if dur := comp.Props.Get(ical.PropDuration); dur != nil {
		d, err := dur.Duration()
		if err != nil {
			return nil, fmt.Errorf("failed to parse DURATION: %w", err)
		}
		occ.End = occ.Start.Add(d)
	}
	if !occ.End.After(occ.Start) {
		return nil, invalidInterval("occurrence", occ.Start, occ.End)
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		occ.Title = summary.Value
	}
	if desc := comp.Props.Get(ical.PropDescription); desc != nil {
		occ.Description = desc.Value
	}
	if status := comp.Props.Get(ical.PropStatus); status != nil {
		occ.Cancelled = strings.EqualFold(status.Value, "CANCELLED")
	}
	return occ, nil
}

// OverridesFromCalendar collects the RECURRENCE-ID components of cal for
// the given events, keyed by event ID. Exceptions of unknown events fail.
func OverridesFromCalendar(cal *ical.Calendar, events []*Event) (map[string][]*Occurrence, error) {
	byID := make(map[string]*Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	out := make(map[string][]*Occurrence)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent || comp.Props.Get(propRecurrenceID) == nil {
			continue
		}
		uid := comp.Props.Get(ical.PropUID)
		if uid == nil {
			return nil, errors.New("exception has no UID")
		}
		ev, ok := byID[uid.Value]
		if !ok {
			return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("exception for unknown event %q", uid.Value)}
		}
		occ, err := OverrideFromComponent(comp, ev)
		if err != nil {
			return nil, fmt.Errorf("exception of %q: %w", uid.Value, err)
		}
		out[ev.ID] = append(out[ev.ID], occ)
	}
	return out, nil
}

// EventComponent renders ev as a master VEVENT.
func EventComponent(ev *Event) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.ID)
	setDateTime(comp.Props, ical.PropDateTimeStamp, stamp(ev.UpdatedOn))
	setDateTime(comp.Props, ical.PropDateTimeStart, ev.Start)
	setDateTime(comp.Props, ical.PropDateTimeEnd, ev.End)
	if ev.Title != "" {
		comp.Props.SetText(ical.PropSummary, ev.Title)
	}
	if ev.Description != "" {
		comp.Props.SetText(ical.PropDescription, ev.Description)
	}
	recurrence.SetRuleOnComponent(comp, ev.Rule)
	return comp
}

// OccurrenceComponent renders occ as a VEVENT. Occurrences of recurring
// events carry a RECURRENCE-ID with their original start so clients can
// match them to the master.
func OccurrenceComponent(occ *Occurrence) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	uid := occ.ID.String()
	if occ.Event != nil && occ.Event.ID != "" {
		uid = occ.Event.ID
	}
	comp.Props.SetText(ical.PropUID, uid)
	setDateTime(comp.Props, ical.PropDateTimeStamp, stamp(occ.UpdatedOn))
	setDateTime(comp.Props, ical.PropDateTimeStart, occ.Start)
	setDateTime(comp.Props, ical.PropDateTimeEnd, occ.End)
	if occ.Event != nil && occ.Event.Recurring() {
		setDateTime(comp.Props, propRecurrenceID, occ.OriginalStart)
	}
	if occ.Title != "" {
		comp.Props.SetText(ical.PropSummary, occ.Title)
	}
	if occ.Description != "" {
		comp.Props.SetText(ical.PropDescription, occ.Description)
	}
	if occ.Cancelled {
		comp.Props.SetText(ical.PropStatus, "CANCELLED")
	}
	return comp
}

// NewCalendar wraps components in a VCALENDAR with the mandatory
// properties set.
func NewCalendar(children ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Children = append(cal.Children, children...)
	return cal
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// setDateTime writes t as UTC, floating, or local time with a TZID,
// depending on its location.
func setDateTime(props ical.Props, name string, t time.Time) {
	prop := ical.NewProp(name)
	switch loc := t.Location(); {
	case IsNaive(t):
		prop.Value = t.Format(dateTimeFormat)
	case loc == time.UTC || loc.String() == "" || loc == time.Local:
		prop.Value = t.UTC().Format(dateTimeFormat + "Z")
	default:
		prop.Params.Set("TZID", loc.String())
		prop.Value = t.Format(dateTimeFormat)
	}
	props.Set(prop)
}
