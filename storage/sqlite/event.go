package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"
)

const eventColumns = `id, calendar_id, title, description,
	start_ts, start_tz, end_ts, end_tz, rule_id,
	recurrence_end_ts, recurrence_end_tz, hint, created_ts, updated_ts`

type eventRow struct {
	ID              string         `db:"id"`
	CalendarID      string         `db:"calendar_id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	StartTs         string         `db:"start_ts"`
	StartTz         string         `db:"start_tz"`
	EndTs           string         `db:"end_ts"`
	EndTz           string         `db:"end_tz"`
	RuleID          sql.NullString `db:"rule_id"`
	RecurrenceEndTs sql.NullString `db:"recurrence_end_ts"`
	RecurrenceEndTz sql.NullString `db:"recurrence_end_tz"`
	Hint            []byte         `db:"hint"`
	CreatedTs       string         `db:"created_ts"`
	UpdatedTs       string         `db:"updated_ts"`
}

func newEventRow(ev *schedule.Event) eventRow {
	row := eventRow{
		ID:          ev.ID,
		CalendarID:  ev.CalendarID,
		Title:       ev.Title,
		Description: ev.Description,
	}
	row.StartTs, row.StartTz = storage.EncodeTime(ev.Start)
	row.EndTs, row.EndTz = storage.EncodeTime(ev.End)
	row.CreatedTs, _ = storage.EncodeTime(ev.CreatedOn)
	row.UpdatedTs, _ = storage.EncodeTime(ev.UpdatedOn)
	if ev.Rule != nil {
		row.RuleID = sql.NullString{String: ev.Rule.ID, Valid: true}
	}
	if end, ok := ev.RecurrenceEnd().Get(); ok {
		ts, tz := storage.EncodeTime(end)
		row.RecurrenceEndTs = sql.NullString{String: ts, Valid: true}
		row.RecurrenceEndTz = sql.NullString{String: tz, Valid: true}
	}
	return row
}

// toEvent decodes the row. rules caches rules already loaded so events that
// share a rule share the pointer.
func (r eventRow) toEvent(ctx context.Context, q sqlx.ExtContext, logger *slog.Logger, rules map[string]*recurrence.Rule) (*schedule.Event, error) {
	ev := &schedule.Event{
		ID:          r.ID,
		CalendarID:  r.CalendarID,
		Title:       r.Title,
		Description: r.Description,
	}
	var err error
	if ev.Start, err = storage.DecodeTime(r.StartTs, r.StartTz); err != nil {
		return nil, fmt.Errorf("event %q: %w", r.ID, err)
	}
	if ev.End, err = storage.DecodeTime(r.EndTs, r.EndTz); err != nil {
		return nil, fmt.Errorf("event %q: %w", r.ID, err)
	}
	if ev.CreatedOn, err = storage.DecodeTime(r.CreatedTs, "UTC"); err != nil {
		return nil, fmt.Errorf("event %q: %w", r.ID, err)
	}
	if ev.UpdatedOn, err = storage.DecodeTime(r.UpdatedTs, "UTC"); err != nil {
		return nil, fmt.Errorf("event %q: %w", r.ID, err)
	}
	if r.RecurrenceEndTs.Valid {
		end, err := storage.DecodeTime(r.RecurrenceEndTs.String, r.RecurrenceEndTz.String)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", r.ID, err)
		}
		ev.EndRecurringPeriod = mo.Some(end)
	}
	if r.RuleID.Valid {
		rule, ok := rules[r.RuleID.String]
		if !ok {
			if rule, err = getRule(ctx, q, r.RuleID.String); err != nil {
				return nil, err
			}
			rules[r.RuleID.String] = rule
		}
		ev.Rule = rule
	}
	if err := ev.RestoreHint(r.Hint); err != nil {
		logger.Warn("failed to restore hint", "event_id", r.ID, "error", err)
	}
	return ev, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*schedule.Event, error) {
	var row eventRow
	if err := sqlx.GetContext(ctx, s.db, &row, `SELECT `+eventColumns+` FROM event WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "event", id)
	}
	return row.toEvent(ctx, s.db, s.logger, make(map[string]*recurrence.Rule))
}

func (s *Store) CreateEvent(ctx context.Context, ev *schedule.Event) error {
	if err := storage.PrepareEvent(ev, true); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM event WHERE id = ?)`, ev.ID); err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if exists {
			return storage.AlreadyExists("event", ev.ID)
		}
		if ev.Rule != nil {
			if err := saveRule(ctx, tx, ev.Rule); err != nil {
				return err
			}
		}
		stmt := `INSERT INTO event (` + eventColumns + `) VALUES (
			:id, :calendar_id, :title, :description,
			:start_ts, :start_tz, :end_ts, :end_tz, :rule_id,
			:recurrence_end_ts, :recurrence_end_tz, NULL, :created_ts, :updated_ts)`
		if _, err := tx.NamedExecContext(ctx, stmt, newEventRow(ev)); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateEvent(ctx context.Context, ev *schedule.Event) error {
	if err := storage.PrepareEvent(ev, false); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if ev.Rule != nil {
			if err := saveRule(ctx, tx, ev.Rule); err != nil {
				return err
			}
		}
		stmt := `UPDATE event SET
			calendar_id = :calendar_id, title = :title, description = :description,
			start_ts = :start_ts, start_tz = :start_tz, end_ts = :end_ts, end_tz = :end_tz,
			rule_id = :rule_id, recurrence_end_ts = :recurrence_end_ts,
			recurrence_end_tz = :recurrence_end_tz, updated_ts = :updated_ts
			WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, stmt, newEventRow(ev))
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return storage.NotFound("event", ev.ID)
		}
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context, calendarID string) ([]*schedule.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM event`
	var args []any
	if calendarID != "" {
		query += ` WHERE calendar_id = ?`
		args = append(args, calendarID)
	}
	query += ` ORDER BY start_ts ASC, id ASC`

	var rows []eventRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	rules := make(map[string]*recurrence.Rule)
	events := make([]*schedule.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEvent(ctx, s.db, s.logger, rules)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Store) SaveHint(ctx context.Context, eventID string, payload []byte) error {
	if len(payload) == 0 {
		payload = nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE event SET hint = ? WHERE id = ?`, payload, eventID)
	if err != nil {
		return fmt.Errorf("failed to save hint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.NotFound("event", eventID)
	}
	return nil
}
