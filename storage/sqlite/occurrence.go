package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const occurrenceColumns = `id, event_id, title, description,
	start_ts, start_tz, end_ts, end_tz,
	original_start_ts, original_start_tz, original_end_ts, original_end_tz,
	cancelled, created_ts, updated_ts`

type occurrenceRow struct {
	ID              string `db:"id"`
	EventID         string `db:"event_id"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	StartTs         string `db:"start_ts"`
	StartTz         string `db:"start_tz"`
	EndTs           string `db:"end_ts"`
	EndTz           string `db:"end_tz"`
	OriginalStartTs string `db:"original_start_ts"`
	OriginalStartTz string `db:"original_start_tz"`
	OriginalEndTs   string `db:"original_end_ts"`
	OriginalEndTz   string `db:"original_end_tz"`
	Cancelled       bool   `db:"cancelled"`
	CreatedTs       string `db:"created_ts"`
	UpdatedTs       string `db:"updated_ts"`
}

func (r occurrenceRow) toOccurrence() (*schedule.Occurrence, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("occurrence %q: %w", r.ID, err)
	}
	occ := &schedule.Occurrence{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Cancelled:   r.Cancelled,
	}
	fields := []struct {
		dst       *time.Time
		value, tz string
	}{
		{&occ.Start, r.StartTs, r.StartTz},
		{&occ.End, r.EndTs, r.EndTz},
		{&occ.OriginalStart, r.OriginalStartTs, r.OriginalStartTz},
		{&occ.OriginalEnd, r.OriginalEndTs, r.OriginalEndTz},
		{&occ.CreatedOn, r.CreatedTs, "UTC"},
		{&occ.UpdatedOn, r.UpdatedTs, "UTC"},
	}
	for _, f := range fields {
		if *f.dst, err = storage.DecodeTime(f.value, f.tz); err != nil {
			return nil, fmt.Errorf("occurrence %q: %w", r.ID, err)
		}
	}
	return occ, nil
}

func (s *Store) FetchPersistedOverrides(ctx context.Context, eventID string) ([]*schedule.Occurrence, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM event WHERE id = ?)`, eventID); err != nil {
		return nil, fmt.Errorf("failed to check event: %w", err)
	}
	if !exists {
		return nil, storage.NotFound("event", eventID)
	}

	var rows []occurrenceRow
	query := `SELECT ` + occurrenceColumns + ` FROM occurrence WHERE event_id = ? ORDER BY start_ts ASC, end_ts ASC`
	if err := s.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}

	occs := make([]*schedule.Occurrence, 0, len(rows))
	for _, row := range rows {
		occ, err := row.toOccurrence()
		if err != nil {
			return nil, err
		}
		occs = append(occs, occ)
	}
	return occs, nil
}

func (s *Store) GetOccurrence(ctx context.Context, id uuid.UUID) (*schedule.Occurrence, error) {
	var row occurrenceRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+occurrenceColumns+` FROM occurrence WHERE id = ?`, id.String()); err != nil {
		return nil, notFound(err, "occurrence", id.String())
	}
	occ, err := row.toOccurrence()
	if err != nil {
		return nil, err
	}

	var evRow eventRow
	if err := s.db.GetContext(ctx, &evRow, `SELECT `+eventColumns+` FROM event WHERE id = ?`, row.EventID); err != nil {
		return nil, notFound(err, "event", row.EventID)
	}
	if occ.Event, err = evRow.toEvent(ctx, s.db, s.logger, make(map[string]*recurrence.Rule)); err != nil {
		return nil, err
	}
	return occ, nil
}

func (s *Store) SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) (uuid.UUID, error) {
	eventID, err := storage.PrepareOccurrence(occ)
	if err != nil {
		return uuid.Nil, err
	}

	row := occurrenceRow{
		EventID:     eventID,
		Title:       occ.Title,
		Description: occ.Description,
		Cancelled:   occ.Cancelled,
	}
	row.StartTs, row.StartTz = storage.EncodeTime(occ.Start)
	row.EndTs, row.EndTz = storage.EncodeTime(occ.End)
	row.OriginalStartTs, row.OriginalStartTz = storage.EncodeTime(occ.OriginalStart)
	row.OriginalEndTs, row.OriginalEndTz = storage.EncodeTime(occ.OriginalEnd)
	now := time.Now().UTC()
	row.UpdatedTs, _ = storage.EncodeTime(now)
	row.CreatedTs = row.UpdatedTs
	if !occ.CreatedOn.IsZero() {
		row.CreatedTs, _ = storage.EncodeTime(occ.CreatedOn)
	}

	var saved uuid.UUID
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM event WHERE id = ?)`, eventID); err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if !exists {
			return storage.NotFound("event", eventID)
		}

		if occ.ID != uuid.Nil {
			var other occurrenceRow
			err := tx.GetContext(ctx, &other, `SELECT `+occurrenceColumns+` FROM occurrence WHERE id = ?`, occ.ID.String())
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return fmt.Errorf("failed to check occurrence: %w", err)
			case other.EventID != eventID || other.OriginalStartTs != row.OriginalStartTs || other.OriginalEndTs != row.OriginalEndTs:
				return storage.InvalidInput("occurrence identity belongs to another original interval", nil)
			}
			row.ID = occ.ID.String()
		} else {
			row.ID = uuid.NewString()
		}

		// The original interval is the natural key: a conflicting row keeps
		// its identity and creation time and takes everything else.
		stmt := `INSERT INTO occurrence (` + occurrenceColumns + `) VALUES (
			:id, :event_id, :title, :description,
			:start_ts, :start_tz, :end_ts, :end_tz,
			:original_start_ts, :original_start_tz, :original_end_ts, :original_end_tz,
			:cancelled, :created_ts, :updated_ts)
			ON CONFLICT (event_id, original_start_ts, original_end_ts) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				start_ts = excluded.start_ts,
				start_tz = excluded.start_tz,
				end_ts = excluded.end_ts,
				end_tz = excluded.end_tz,
				cancelled = excluded.cancelled,
				updated_ts = excluded.updated_ts
			RETURNING id`
		query, args, err := sqlx.Named(stmt, row)
		if err != nil {
			return fmt.Errorf("failed to bind occurrence: %w", err)
		}
		var id string
		if err := tx.QueryRowxContext(ctx, tx.Rebind(query), args...).Scan(&id); err != nil {
			return fmt.Errorf("failed to save occurrence: %w", err)
		}
		if saved, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("failed to parse occurrence id %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Debug("occurrence saved", "event", eventID, "id", saved)
	return saved, nil
}
