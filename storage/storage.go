package storage

import (
	"context"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/google/uuid"
)

// Storage interface connects your backend storage (e.g. database) with the
// schedule engine. Please use the error types provided.
type Storage interface {
	// FetchPersistedOverrides returns every saved occurrence of an event as a
	// complete snapshot. The occurrences' Event field may be left nil.
	FetchPersistedOverrides(ctx context.Context, eventID string) ([]*schedule.Occurrence, error)
	// SaveOccurrence upserts an occurrence keyed by its event and original
	// interval, and returns its durable identity.
	SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) (uuid.UUID, error)
	// GetOccurrence finds a saved occurrence by identity.
	GetOccurrence(ctx context.Context, id uuid.UUID) (*schedule.Occurrence, error)

	// GetEvent returns an event with its rule attached and its hint restored.
	GetEvent(ctx context.Context, id string) (*schedule.Event, error)
	// CreateEvent stores a new event and its rule. An empty ID is assigned.
	CreateEvent(ctx context.Context, ev *schedule.Event) error
	// UpdateEvent replaces an existing event.
	UpdateEvent(ctx context.Context, ev *schedule.Event) error
	// ListEvents returns the events of a calendar, or all events when
	// calendarID is empty.
	ListEvents(ctx context.Context, calendarID string) ([]*schedule.Event, error)
	// SaveHint stores the serialized recent-start hint of an event.
	SaveHint(ctx context.Context, eventID string, payload []byte) error

	// GetRule finds a rule by ID.
	GetRule(ctx context.Context, id string) (*recurrence.Rule, error)
	// SaveRule creates or replaces a rule.
	SaveRule(ctx context.Context, rule *recurrence.Rule) error
}
