package schedule

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// cursor walks a rule one occurrence at a time.
type cursor struct {
	ev       *Event
	next     rrule.Next
	loc      *time.Location
	duration time.Duration
	until    mo.Option[time.Time]
}

// advance returns the next generated occurrence, or ErrRuleExhausted once
// the rule or the recurrence bound has run out.
func (c *cursor) advance() (*Occurrence, error) {
	s, ok := c.next()
	if !ok {
		return nil, ErrRuleExhausted
	}
	if until, bounded := c.until.Get(); bounded && s.After(until) {
		return nil, ErrRuleExhausted
	}
	s = s.In(c.loc)
	return c.ev.newOccurrence(s, s.Add(c.duration)), nil
}

// OccurrencesAfter returns a lazy sequence of the occurrences of ev that end
// after the given instant, in generation order. Overrides from rc replace
// their candidates; an override that no longer ends after the instant drops
// its candidate. A zero after means now.
//
// Each range over the sequence starts again from the template start. The
// consumer may stop at any point.
func (e *Engine) OccurrencesAfter(ev *Event, after time.Time, rc *Reconciler) (iter.Seq[*Occurrence], error) {
	if after.IsZero() {
		after = time.Now()
	}
	f, err := e.resolve(ev, after, after)
	if err != nil {
		return nil, err
	}
	after = f.windowStart

	if ev.Rule == nil {
		return func(yield func(*Occurrence) bool) {
			if !f.end.After(after) {
				return
			}
			if o, keep := rc.substitute(ev.newOccurrence(f.start, f.end), after); keep {
				yield(o)
			}
		}, nil
	}

	rr, err := e.rules.Compile(ev.Rule, f.start).Get()
	if err != nil {
		return nil, fmt.Errorf("stream event %q: %w", ev.ID, err)
	}

	return func(yield func(*Occurrence) bool) {
		c := &cursor{
			ev:       ev,
			next:     rr.Iterator(),
			loc:      f.start.Location(),
			duration: f.end.Sub(f.start),
			until:    f.until,
		}
		for {
			occ, err := c.advance()
			if errors.Is(err, ErrRuleExhausted) {
				return
			}
			if !occ.End.After(after) {
				continue
			}
			o, keep := rc.substitute(occ, after)
			if !keep {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}, nil
}
