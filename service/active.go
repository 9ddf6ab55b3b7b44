package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/libschedule/schedule"
)

// ActiveEvents returns the events of a calendar with at least one
// non-cancelled occurrence overlapping [rangeStart, rangeEnd].
//
// Events without overrides are checked by walking the rule up to the first
// hit. Events with overrides are expanded and reconciled.
func (s *Service) ActiveEvents(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time) ([]*schedule.Event, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, &schedule.Error{
			Kind:    schedule.KindInvalidInterval,
			Message: fmt.Sprintf("range end %s before start %s", rangeEnd.Format(time.RFC3339), rangeStart.Format(time.RFC3339)),
		}
	}
	events, err := s.store.ListEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	var active []*schedule.Event
	for _, ev := range events {
		ok, err := s.isActive(ctx, ev, rangeStart, rangeEnd)
		if err != nil {
			return nil, fmt.Errorf("check event %q: %w", ev.ID, err)
		}
		if ok {
			active = append(active, ev)
		}
	}
	return active, nil
}

func (s *Service) isActive(ctx context.Context, ev *schedule.Event, rangeStart, rangeEnd time.Time) (bool, error) {
	rc, err := s.reconciler(ctx, ev)
	if err != nil {
		return false, err
	}

	if rc.Len() > 0 {
		occs, err := s.engine.Expand(ev, rangeStart, rangeEnd, schedule.ExpandOptions{Overrides: rc.Overrides()})
		if err != nil {
			return false, err
		}
		for _, o := range occs {
			if !o.Cancelled {
				return true, nil
			}
		}
		return false, nil
	}

	start := ev.Start
	until, bounded := ev.RecurrenceEnd().Get()
	instants := []*time.Time{&start, &rangeStart, &rangeEnd}
	if bounded {
		instants = append(instants, &until)
	}
	if err := s.engine.ZonePolicy().Resolve(instants...); err != nil {
		return false, err
	}
	// The bound limits starts, and so does the rule walk's range end.
	if bounded && until.Before(rangeEnd) {
		rangeEnd = until
	}
	return s.engine.Rules().HasOccurrenceInRange(ev.Rule, start, ev.Duration(), rangeStart, rangeEnd)
}
