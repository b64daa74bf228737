package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
)

const ruleColumns = `id, name, event, conditions, template, recipients, enabled, created_at, updated_at`

// ruleRow stores the structured parts of a rule as JSON text.
type ruleRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"name"`
	Event      string      `db:"event"`
	Conditions null.String `db:"conditions"`
	Template   string      `db:"template"`
	Recipients string      `db:"recipients"`
	Enabled    bool        `db:"enabled"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func newRuleRow(r automation.Rule) (ruleRow, error) {
	row := ruleRow{
		ID:        r.ID,
		Name:      r.Name,
		Event:     r.Event,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if len(r.Conditions) > 0 {
		b, err := json.Marshal(r.Conditions)
		if err != nil {
			return ruleRow{}, errors.Wrap(err, "encoding conditions")
		}
		row.Conditions = null.StringFrom(string(b))
	}
	b, err := json.Marshal(r.Template)
	if err != nil {
		return ruleRow{}, errors.Wrap(err, "encoding template")
	}
	row.Template = string(b)
	if b, err = json.Marshal(r.Recipients); err != nil {
		return ruleRow{}, errors.Wrap(err, "encoding recipients")
	}
	row.Recipients = string(b)
	return row, nil
}

func (row ruleRow) rule() (automation.Rule, error) {
	r := automation.Rule{
		ID:         row.ID,
		Name:       row.Name,
		Event:      row.Event,
		Conditions: automation.Conditions{},
		Enabled:    row.Enabled,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.Conditions.Valid && row.Conditions.String != "" {
		if err := json.Unmarshal([]byte(row.Conditions.String), &r.Conditions); err != nil {
			return automation.Rule{}, errors.Wrapf(err, "decoding conditions of rule %s", row.ID)
		}
	}
	if err := json.Unmarshal([]byte(row.Template), &r.Template); err != nil {
		return automation.Rule{}, errors.Wrapf(err, "decoding template of rule %s", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Recipients), &r.Recipients); err != nil {
		return automation.Rule{}, errors.Wrapf(err, "decoding recipients of rule %s", row.ID)
	}
	return r, nil
}

type ruleRepository struct {
	db core.DB
}

var _ automation.Repository = (*ruleRepository)(nil) // interface compliance check

func NewRuleRepository(db core.DB) automation.Repository {
	return &ruleRepository{db: db}
}

func (repo *ruleRepository) Create(ctx context.Context, rule automation.Rule) error {
	row, err := newRuleRow(rule)
	if err != nil {
		return err
	}
	q := `INSERT INTO automation_rules (` + ruleColumns + `) VALUES (
		:id, :name, :event, :conditions, :template, :recipients, :enabled, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return storageErr(err, "insert rule")
	}
	return nil
}

func (repo *ruleRepository) Update(ctx context.Context, rule automation.Rule) error {
	row, err := newRuleRow(rule)
	if err != nil {
		return err
	}
	q := `UPDATE automation_rules SET name = :name, event = :event, conditions = :conditions,
		template = :template, recipients = :recipients, enabled = :enabled, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, row)
	n, err := rowsAffected(res, err, "update rule")
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (repo *ruleRepository) Delete(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM automation_rules WHERE id = ?`), id)
	n, err := rowsAffected(res, err, "delete rule")
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (repo *ruleRepository) Get(ctx context.Context, id string) (automation.Rule, error) {
	var row ruleRow
	q := repo.db.Rebind(`SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return automation.Rule{}, storageErr(err, "get rule")
	}
	return row.rule()
}

func (repo *ruleRepository) query(ctx context.Context, op, where string, args ...interface{}) ([]automation.Rule, error) {
	var rows []ruleRow
	q := repo.db.Rebind(`SELECT ` + ruleColumns + ` FROM automation_rules` + where + ` ORDER BY created_at, id`)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageErr(err, op)
	}
	rules := make([]automation.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (repo *ruleRepository) List(ctx context.Context) ([]automation.Rule, error) {
	return repo.query(ctx, "list rules", "")
}

func (repo *ruleRepository) ListEnabled(ctx context.Context) ([]automation.Rule, error) {
	return repo.query(ctx, "list enabled rules", " WHERE enabled = ?", true)
}
