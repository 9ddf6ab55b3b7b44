// Package service ties the schedule engine to a storage backend: it loads
// the override snapshot of an event, expands and reconciles, and commits
// changes to single occurrences.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"golang.org/x/sync/errgroup"
)

// Service is safe for concurrent use when its storage is.
type Service struct {
	store       storage.Storage
	engine      *schedule.Engine
	logger      *slog.Logger
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency limits how many events ExpandMany works on at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a service. The caller keeps ownership of store and engine.
func New(store storage.Storage, engine *schedule.Engine, opts ...Option) *Service {
	s := &Service{
		store:       store,
		engine:      engine,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the schedule engine.
func (s *Service) Engine() *schedule.Engine {
	return s.engine
}

// reconciler loads the override snapshot of ev and attaches it to ev.
func (s *Service) reconciler(ctx context.Context, ev *schedule.Event) (*schedule.Reconciler, error) {
	overrides, err := s.store.FetchPersistedOverrides(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch overrides of event %q: %w", ev.ID, err)
	}
	for _, o := range overrides {
		o.Event = ev
	}
	return schedule.NewReconciler(overrides), nil
}

// persistHint stores the hint of ev when expansion changed it. Failures
// only cost later expansions their fast path, so they are logged.
func (s *Service) persistHint(ctx context.Context, ev *schedule.Event, before []byte) {
	payload, err := ev.HintPayload()
	if err != nil {
		s.logger.Warn("failed to encode hint", "event", ev.ID, "error", err)
		return
	}
	if payload == nil || bytes.Equal(payload, before) {
		return
	}
	if err := s.store.SaveHint(ctx, ev.ID, payload); err != nil {
		s.logger.Warn("failed to save hint", "event", ev.ID, "error", err)
	}
}

// Occurrences loads an event and returns its reconciled occurrences in
// [windowStart, windowEnd].
func (s *Service) Occurrences(ctx context.Context, eventID string, windowStart, windowEnd time.Time) ([]*schedule.Occurrence, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.Expand(ctx, ev, windowStart, windowEnd)
}

// Expand returns the reconciled occurrences of a stored event in
// [windowStart, windowEnd] and persists the refreshed hint.
func (s *Service) Expand(ctx context.Context, ev *schedule.Event, windowStart, windowEnd time.Time) ([]*schedule.Occurrence, error) {
	rc, err := s.reconciler(ctx, ev)
	if err != nil {
		return nil, err
	}
	before, _ := ev.HintPayload()

	occs, err := s.engine.Expand(ev, windowStart, windowEnd, schedule.ExpandOptions{Overrides: rc.Overrides()})
	if err != nil {
		return nil, err
	}
	s.persistHint(ctx, ev, before)

	s.logger.Debug("expanded event",
		"event", ev.ID,
		"window_start", windowStart,
		"window_end", windowEnd,
		"occurrences", len(occs),
		"overrides", rc.Len())
	return occs, nil
}

// ExpandMany expands several events concurrently, each with its own
// override snapshot. The result is keyed by event ID. The first error
// cancels the remaining work.
func (s *Service) ExpandMany(ctx context.Context, events []*schedule.Event, windowStart, windowEnd time.Time) (map[string][]*schedule.Occurrence, error) {
	var mu sync.Mutex
	result := make(map[string][]*schedule.Occurrence, len(events))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ev := range events {
		g.Go(func() error {
			occs, err := s.Expand(ctx, ev, windowStart, windowEnd)
			if err != nil {
				return fmt.Errorf("expand event %q: %w", ev.ID, err)
			}
			mu.Lock()
			result[ev.ID] = occs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// ExpandCalendar expands every event of one calendar. An empty calendarID
// selects all events.
func (s *Service) ExpandCalendar(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) (map[string][]*schedule.Occurrence, error) {
	events, err := s.store.ListEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return s.ExpandMany(ctx, events, windowStart, windowEnd)
}

// OccurrencesAfter returns the lazy stream of a stored event's occurrences
// ending after the given instant, reconciled against the overrides stored
// when the call is made.
func (s *Service) OccurrencesAfter(ctx context.Context, eventID string, after time.Time) (iter.Seq[*schedule.Occurrence], error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rc, err := s.reconciler(ctx, ev)
	if err != nil {
		return nil, err
	}
	return s.engine.OccurrencesAfter(ev, after, rc)
}

// Occurrence returns the occurrence of an event originally generated at the
// given instant, persisted or not. It fails with schedule.ErrNotFound when
// the event has no occurrence there.
func (s *Service) Occurrence(ctx context.Context, eventID string, originalStart time.Time) (*schedule.Occurrence, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rc, err := s.reconciler(ctx, ev)
	if err != nil {
		return nil, err
	}
	occ, ok, err := s.engine.OccurrenceAt(ev, originalStart, rc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &schedule.Error{
			Kind:    schedule.KindNotFound,
			Message: fmt.Sprintf("event %q has no occurrence at %s", eventID, originalStart.Format(time.RFC3339)),
		}
	}
	return occ, nil
}

// Save persists occ and sets its identity.
func (s *Service) Save(ctx context.Context, occ *schedule.Occurrence) error {
	id, err := s.store.SaveOccurrence(ctx, occ)
	if err != nil {
		return fmt.Errorf("save occurrence %s: %w", occ, err)
	}
	occ.ID = id
	s.logger.Info("occurrence saved",
		"event", occ.Event.ID,
		"id", id,
		"original_start", occ.OriginalStart,
		"moved", occ.Moved(),
		"cancelled", occ.Cancelled)
	return nil
}

// Update finds the occurrence of an event at originalStart, applies fn to it
// and persists the result.
func (s *Service) Update(ctx context.Context, eventID string, originalStart time.Time, fn func(*schedule.Occurrence) error) (*schedule.Occurrence, error) {
	occ, err := s.Occurrence(ctx, eventID, originalStart)
	if err != nil {
		return nil, err
	}
	if err := fn(occ); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, occ); err != nil {
		return nil, err
	}
	return occ, nil
}

// Move reschedules one occurrence.
func (s *Service) Move(ctx context.Context, eventID string, originalStart, start, end time.Time) (*schedule.Occurrence, error) {
	return s.Update(ctx, eventID, originalStart, func(o *schedule.Occurrence) error {
		return o.Move(start, end)
	})
}

// Cancel marks one occurrence cancelled. Cancelled occurrences are still
// returned by expansion.
func (s *Service) Cancel(ctx context.Context, eventID string, originalStart time.Time) (*schedule.Occurrence, error) {
	return s.Update(ctx, eventID, originalStart, func(o *schedule.Occurrence) error {
		o.Cancel()
		return nil
	})
}

// Uncancel reverts Cancel.
func (s *Service) Uncancel(ctx context.Context, eventID string, originalStart time.Time) (*schedule.Occurrence, error) {
	return s.Update(ctx, eventID, originalStart, func(o *schedule.Occurrence) error {
		o.Uncancel()
		return nil
	})
}

// Retitle changes the title and description of one occurrence.
func (s *Service) Retitle(ctx context.Context, eventID string, originalStart time.Time, title, description string) (*schedule.Occurrence, error) {
	return s.Update(ctx, eventID, originalStart, func(o *schedule.Occurrence) error {
		o.Title = title
		o.Description = description
		return nil
	})
}
