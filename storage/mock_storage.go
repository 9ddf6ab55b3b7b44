package storage

import (
	"context"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

// FetchPersistedOverrides implements the Storage interface
func (m *MockStorage) FetchPersistedOverrides(ctx context.Context, eventID string) ([]*schedule.Occurrence, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Occurrence), args.Error(1)
}

func (m *MockStorage) SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) (uuid.UUID, error) {
	args := m.Called(ctx, occ)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStorage) GetOccurrence(ctx context.Context, id uuid.UUID) (*schedule.Occurrence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Occurrence), args.Error(1)
}

func (m *MockStorage) GetEvent(ctx context.Context, id string) (*schedule.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	ev := args.Get(0).(*schedule.Event)
	if ev == nil {
		return nil, args.Error(1)
	}
	return ev, args.Error(1)
}

func (m *MockStorage) CreateEvent(ctx context.Context, ev *schedule.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStorage) UpdateEvent(ctx context.Context, ev *schedule.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStorage) ListEvents(ctx context.Context, calendarID string) ([]*schedule.Event, error) {
	args := m.Called(ctx, calendarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Event), args.Error(1)
}

func (m *MockStorage) SaveHint(ctx context.Context, eventID string, payload []byte) error {
	args := m.Called(ctx, eventID, payload)
	return args.Error(0)
}

func (m *MockStorage) GetRule(ctx context.Context, id string) (*recurrence.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurrence.Rule), args.Error(1)
}

func (m *MockStorage) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}
