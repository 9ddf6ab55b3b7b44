package schedule

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/samber/mo"
)

// Engine expands events into occurrences. It holds no per-event state and
// may be used from many goroutines.
type Engine struct {
	rules     *recurrence.Engine
	ownsRules bool
	zones     ZonePolicy
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithZonePolicy sets how naive instants are treated.
func WithZonePolicy(p ZonePolicy) Option {
	return func(e *Engine) {
		e.zones = p
	}
}

// WithRuleEngine shares an existing rule engine and its cache. The caller
// stays responsible for closing it.
func WithRuleEngine(rules *recurrence.Engine) Option {
	return func(e *Engine) {
		if rules != nil {
			e.rules = rules
		}
	}
}

// NewEngine creates an engine. Without WithRuleEngine it builds its own rule
// engine from recurrence.DefaultEngineConfig.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		zones:  DefaultZonePolicy,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = recurrence.NewEngine(recurrence.WithLogger(e.logger))
		e.ownsRules = true
	}
	return e
}

// Close releases the rule engine if this engine created it.
func (e *Engine) Close() {
	if e.ownsRules {
		e.rules.Close()
	}
}

// Rules returns the underlying rule engine.
func (e *Engine) Rules() *recurrence.Engine {
	return e.rules
}

// ZonePolicy returns the policy applied to naive instants.
func (e *Engine) ZonePolicy() ZonePolicy {
	return e.zones
}

// ExpandOptions tunes Expand.
type ExpandOptions struct {
	// SkipFastPath ignores the event's hint and starts the rule at the
	// template start. The result is the same either way.
	SkipFastPath bool
	// Overrides are persisted occurrences of the event. When nil, Expand
	// returns raw candidates.
	Overrides []*Occurrence
}

// frame holds the instants of one call after zone resolution.
type frame struct {
	start, end             time.Time
	windowStart, windowEnd time.Time
	until                  mo.Option[time.Time]
}

func (e *Engine) resolve(ev *Event, windowStart, windowEnd time.Time) (frame, error) {
	if ev == nil {
		return frame{}, errors.New("nil event")
	}
	if !ev.End.After(ev.Start) {
		return frame{}, invalidInterval("event", ev.Start, ev.End)
	}

	f := frame{
		start:       ev.Start,
		end:         ev.End,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
	until, bounded := ev.RecurrenceEnd().Get()
	instants := []*time.Time{&f.start, &f.end, &f.windowStart, &f.windowEnd}
	if bounded {
		instants = append(instants, &until)
	}
	if err := e.zones.Resolve(instants...); err != nil {
		return frame{}, err
	}
	if bounded {
		f.until = mo.Some(until)
	}
	return f, nil
}

// Expand returns the occurrences of ev that intersect [windowStart,
// windowEnd], ordered by start. With overrides the result is reconciled as
// described on Reconciler.Merge.
func (e *Engine) Expand(ev *Event, windowStart, windowEnd time.Time, opts ExpandOptions) ([]*Occurrence, error) {
	f, err := e.resolve(ev, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	candidates, err := e.candidates(ev, f, opts.SkipFastPath)
	if err != nil {
		return nil, err
	}
	if opts.Overrides == nil {
		return candidates, nil
	}
	return Merge(candidates, opts.Overrides, f.windowStart, f.windowEnd), nil
}

// Candidates returns the raw generated occurrences of ev for the window,
// without any override applied.
func (e *Engine) Candidates(ev *Event, windowStart, windowEnd time.Time, skipFastPath bool) ([]*Occurrence, error) {
	f, err := e.resolve(ev, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	return e.candidates(ev, f, skipFastPath)
}

func (e *Engine) candidates(ev *Event, f frame, skipFastPath bool) ([]*Occurrence, error) {
	if ev.Rule == nil {
		if intersects(f.start, f.end, f.windowStart, f.windowEnd) {
			return []*Occurrence{ev.newOccurrence(f.start, f.end)}, nil
		}
		return nil, nil
	}

	duration := f.end.Sub(f.start)
	from := f.windowStart.Add(-duration)
	to := f.windowEnd
	if until, ok := f.until.Get(); ok && until.Before(to) {
		to = until
	}
	if to.Before(from) {
		return nil, nil
	}

	anchor := f.start
	if !skipFastPath {
		anchor = e.anchor(ev, f.start, from)
	}

	instants, truncated, err := e.rules.Between(ev.Rule, anchor, from, to)
	if err != nil {
		return nil, fmt.Errorf("expand event %q: %w", ev.ID, err)
	}
	if truncated {
		return nil, &Error{
			Kind: KindTooManyOccurrences,
			Message: fmt.Sprintf("event %q has more than %d occurrences between %s and %s",
				ev.ID, len(instants), f.windowStart.Format(time.RFC3339), f.windowEnd.Format(time.RFC3339)),
		}
	}

	loc := f.start.Location()
	occs := make([]*Occurrence, 0, len(instants))
	for _, s := range instants {
		s = s.In(loc)
		occs = append(occs, ev.newOccurrence(s, s.Add(duration)))
	}

	if len(occs) > 0 && occs[0].Start.After(f.start) {
		ev.RecordHint(occs[0].Start, occs[0].End)
	}
	return occs, nil
}

// anchor picks where rule iteration starts. A hint is used only when it is
// valid, strictly before the first instant needed, and the rule has no
// COUNT: starting a counted rule later would shift where the count ends.
func (e *Engine) anchor(ev *Event, start, need time.Time) time.Time {
	if !e.rules.Config().OptimizedGeneration || ev.Rule.Params.Count > 0 {
		return start
	}
	h, ok := ev.Hint().Get()
	if !ok || !h.Anchor.Before(need) {
		return start
	}
	e.logger.Debug("expanding from hint",
		"event_id", ev.ID,
		"anchor", h.Anchor,
		"template_start", start)
	return h.Anchor.In(start.Location())
}

// OccurrenceAt returns the occurrence originally generated at the instant
// at: the override from rc when there is one, otherwise a fresh ephemeral
// occurrence. The boolean is false when the event has no occurrence there.
func (e *Engine) OccurrenceAt(ev *Event, at time.Time, rc *Reconciler) (*Occurrence, bool, error) {
	f, err := e.resolve(ev, at, at)
	if err != nil {
		return nil, false, err
	}
	at = f.windowStart

	var occ *Occurrence
	if ev.Rule == nil {
		if !f.start.Equal(at) {
			return nil, false, nil
		}
		occ = ev.newOccurrence(f.start, f.end)
	} else {
		if until, ok := f.until.Get(); ok && at.After(until) {
			return nil, false, nil
		}
		anchor := e.anchor(ev, f.start, at)
		instants, _, err := e.rules.Between(ev.Rule, anchor, at, at)
		if err != nil {
			return nil, false, fmt.Errorf("occurrence of event %q at %s: %w", ev.ID, at.Format(time.RFC3339), err)
		}
		if len(instants) == 0 {
			return nil, false, nil
		}
		s := instants[0].In(f.start.Location())
		occ = ev.newOccurrence(s, s.Add(f.end.Sub(f.start)))
	}

	if o, ok := rc.Lookup(occ).Get(); ok {
		return o, true, nil
	}
	return occ, true, nil
}
