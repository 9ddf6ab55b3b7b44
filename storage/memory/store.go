// memory based implementation for testing purposes
package memory

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"github.com/google/uuid"
)

type eventRecord struct {
	event  *schedule.Event // Rule is nil, see ruleID
	ruleID string
}

type occurrenceRecord struct {
	occ     schedule.Occurrence // Event is nil
	eventID string
}

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu          sync.RWMutex
	rules       map[string]*recurrence.Rule
	events      map[string]*eventRecord
	occurrences map[uuid.UUID]*occurrenceRecord
	index       map[string]map[schedule.Key]uuid.UUID // key: eventID, then original interval
	hints       map[string][]byte
	logger      *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		rules:       make(map[string]*recurrence.Rule),
		events:      make(map[string]*eventRecord),
		occurrences: make(map[uuid.UUID]*occurrenceRecord),
		index:       make(map[string]map[schedule.Key]uuid.UUID),
		hints:       make(map[string][]byte),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rule operations

func (s *Store) GetRule(_ context.Context, id string) (*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, storage.NotFound("rule", id)
	}
	return rule, nil
}

func (s *Store) SaveRule(_ context.Context, rule *recurrence.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.saveRule(rule)
	return err
}

// saveRule stores a copy of rule and returns the stored pointer, which all
// events using the rule share.
func (s *Store) saveRule(rule *recurrence.Rule) (*recurrence.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, storage.InvalidInput("invalid rule", err)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	stored, ok := s.rules[rule.ID]
	if !ok {
		stored = &recurrence.Rule{}
		s.rules[rule.ID] = stored
	}
	*stored = *rule
	return stored, nil
}

// Event operations

func (s *Store) GetEvent(_ context.Context, id string) (*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEvent(id)
}

func (s *Store) getEvent(id string) (*schedule.Event, error) {
	rec, ok := s.events[id]
	if !ok {
		return nil, storage.NotFound("event", id)
	}
	ev := rec.event.Clone()
	if rec.ruleID != "" {
		ev.Rule = s.rules[rec.ruleID]
	}
	// A broken payload only costs the fast path.
	if err := ev.RestoreHint(s.hints[id]); err != nil {
		s.logger.Warn("failed to restore hint", "event_id", id, "error", err)
	}
	return ev, nil
}

func (s *Store) CreateEvent(_ context.Context, ev *schedule.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev != nil && ev.ID != "" {
		if _, exists := s.events[ev.ID]; exists {
			return storage.AlreadyExists("event", ev.ID)
		}
	}
	if err := storage.PrepareEvent(ev, true); err != nil {
		return err
	}
	return s.putEvent(ev)
}

func (s *Store) UpdateEvent(_ context.Context, ev *schedule.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := storage.PrepareEvent(ev, false); err != nil {
		return err
	}
	old, ok := s.events[ev.ID]
	if !ok {
		return storage.NotFound("event", ev.ID)
	}
	ev.CreatedOn = old.event.CreatedOn
	return s.putEvent(ev)
}

func (s *Store) putEvent(ev *schedule.Event) error {
	rec := &eventRecord{event: ev.Clone()}
	rec.event.Rule = nil
	rec.event.ClearHint()
	if ev.Rule != nil {
		stored, err := s.saveRule(ev.Rule)
		if err != nil {
			return err
		}
		rec.ruleID = stored.ID
	}
	s.events[ev.ID] = rec
	return nil
}

func (s *Store) ListEvents(_ context.Context, calendarID string) ([]*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*schedule.Event
	for id, rec := range s.events {
		if calendarID != "" && rec.event.CalendarID != calendarID {
			continue
		}
		ev, err := s.getEvent(id)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	slices.SortFunc(events, func(a, b *schedule.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return events, nil
}

func (s *Store) SaveHint(_ context.Context, eventID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return storage.NotFound("event", eventID)
	}
	if len(payload) == 0 {
		delete(s.hints, eventID)
		return nil
	}
	s.hints[eventID] = slices.Clone(payload)
	return nil
}

// Occurrence operations

func (s *Store) FetchPersistedOverrides(_ context.Context, eventID string) ([]*schedule.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, storage.NotFound("event", eventID)
	}
	occs := make([]*schedule.Occurrence, 0, len(s.index[eventID]))
	for _, id := range s.index[eventID] {
		occ := s.occurrences[id].occ
		occs = append(occs, &occ)
	}
	schedule.SortOccurrences(occs)
	return occs, nil
}

func (s *Store) GetOccurrence(_ context.Context, id uuid.UUID) (*schedule.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.occurrences[id]
	if !ok {
		return nil, storage.NotFound("occurrence", id.String())
	}
	ev, err := s.getEvent(rec.eventID)
	if err != nil {
		return nil, err
	}
	occ := rec.occ
	occ.Event = ev
	return &occ, nil
}

func (s *Store) SaveOccurrence(_ context.Context, occ *schedule.Occurrence) (uuid.UUID, error) {
	eventID, err := storage.PrepareOccurrence(occ)
	if err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return uuid.Nil, storage.NotFound("event", eventID)
	}
	byKey := s.index[eventID]
	if byKey == nil {
		byKey = make(map[schedule.Key]uuid.UUID)
		s.index[eventID] = byKey
	}

	key := occ.Key()
	now := time.Now().UTC()
	id, exists := byKey[key]
	if !exists {
		if occ.ID != uuid.Nil {
			if rec, taken := s.occurrences[occ.ID]; taken && (rec.eventID != eventID || rec.occ.Key() != key) {
				return uuid.Nil, storage.InvalidInput("occurrence identity belongs to another original interval", nil)
			}
		}
		id = occ.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
	}

	rec := &occurrenceRecord{occ: *occ, eventID: eventID}
	rec.occ.ID = id
	rec.occ.Event = nil
	rec.occ.UpdatedOn = now
	if old, ok := s.occurrences[id]; ok {
		rec.occ.CreatedOn = old.occ.CreatedOn
	} else if rec.occ.CreatedOn.IsZero() {
		rec.occ.CreatedOn = now
	}
	s.occurrences[id] = rec
	byKey[key] = id
	return id, nil
}
