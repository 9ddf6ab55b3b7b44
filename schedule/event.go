package schedule

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/samber/mo"
)

// Event is a recurring-event template. Every generated occurrence keeps the
// template's duration. Events must not be copied after first use; use Clone.
type Event struct {
	ID          string
	CalendarID  string
	Start       time.Time
	End         time.Time
	Title       string
	Description string
	// Rule is shared with other events. Nil means the event does not recur.
	Rule *recurrence.Rule
	// EndRecurringPeriod bounds the recurrence. Ignored when Rule is nil.
	EndRecurringPeriod mo.Option[time.Time]
	CreatedOn          time.Time
	UpdatedOn          time.Time

	hint atomic.Pointer[Hint]
}

// NewEvent builds a validated event. Pass a nil rule for a one-off event.
func NewEvent(title string, start, end time.Time, rule *recurrence.Rule) (*Event, error) {
	now := time.Now()
	ev := &Event{
		Title:     title,
		Start:     start,
		End:       end,
		Rule:      rule,
		CreatedOn: now,
		UpdatedOn: now,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Validate checks the interval and the rule.
func (e *Event) Validate() error {
	if !e.End.After(e.Start) {
		return invalidInterval("event", e.Start, e.End)
	}
	if e.Rule != nil {
		if err := e.Rule.Validate(); err != nil {
			return fmt.Errorf("event %q: %w", e.ID, err)
		}
	}
	return nil
}

// Duration is the length of the template and of every occurrence.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Recurring reports whether the event has a rule.
func (e *Event) Recurring() bool {
	return e.Rule != nil
}

// RecurrenceEnd returns the recurrence bound when it applies.
func (e *Event) RecurrenceEnd() mo.Option[time.Time] {
	if e.Rule == nil {
		return mo.None[time.Time]()
	}
	return e.EndRecurringPeriod
}

// Clone returns a copy that shares the rule and the current hint.
func (e *Event) Clone() *Event {
	c := &Event{
		ID:                 e.ID,
		CalendarID:         e.CalendarID,
		Start:              e.Start,
		End:                e.End,
		Title:              e.Title,
		Description:        e.Description,
		Rule:               e.Rule,
		EndRecurringPeriod: e.EndRecurringPeriod,
		CreatedOn:          e.CreatedOn,
		UpdatedOn:          e.UpdatedOn,
	}
	c.hint.Store(e.hint.Load())
	return c
}

func (e *Event) String() string {
	if e.Rule == nil {
		return fmt.Sprintf("%s: %s - %s", e.Title, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s: %s - %s (%s)", e.Title, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Rule)
}

func (e *Event) newOccurrence(start, end time.Time) *Occurrence {
	return &Occurrence{
		Event:         e,
		Start:         start,
		End:           end,
		OriginalStart: start,
		OriginalEnd:   end,
		Title:         e.Title,
		Description:   e.Description,
	}
}
