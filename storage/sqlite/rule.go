package sqlite

import (
	"context"
	"fmt"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ruleRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Frequency   string `db:"frequency"`
	Params      string `db:"params"`
}

func (r ruleRow) toRule() (*recurrence.Rule, error) {
	params, err := recurrence.ParseParams(r.Params)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.ID, err)
	}
	rule := &recurrence.Rule{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Frequency:   recurrence.Frequency(r.Frequency),
		Params:      params,
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.ID, err)
	}
	return rule, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*recurrence.Rule, error) {
	return getRule(ctx, s.db, id)
}

func getRule(ctx context.Context, q sqlx.ExtContext, id string) (*recurrence.Rule, error) {
	var row ruleRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT id, name, description, frequency, params FROM rule WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "rule", id)
	}
	return row.toRule()
}

func (s *Store) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return saveRule(ctx, tx, rule)
	})
}

func saveRule(ctx context.Context, q sqlx.ExtContext, rule *recurrence.Rule) error {
	if err := rule.Validate(); err != nil {
		return storage.InvalidInput("invalid rule", err)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	row := ruleRow{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Frequency:   string(rule.Frequency),
		Params:      rule.Params.String(),
	}
	stmt := `INSERT INTO rule (id, name, description, frequency, params)
		VALUES (:id, :name, :description, :frequency, :params)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			frequency = excluded.frequency,
			params = excluded.params`
	if _, err := sqlx.NamedExecContext(ctx, q, stmt, row); err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}
