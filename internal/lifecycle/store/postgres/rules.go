package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const ruleColumns = `id, name, enabled, rule_type, conditions, action, created_at, updated_at`

type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) Create(ctx context.Context, r *models.AutomationRule) error {
	conditions, action, err := encodeRule(r)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO automation_rules (name, enabled, rule_type, conditions, action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		r.Name, r.Enabled, string(r.Type), conditions, action, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *RuleStore) Update(ctx context.Context, r *models.AutomationRule) error {
	conditions, action, err := encodeRule(r)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = $2, enabled = $3, rule_type = $4, conditions = $5, action = $6, updated_at = $7
		WHERE id = $1`,
		r.ID, r.Name, r.Enabled, string(r.Type), conditions, action, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireAffected(res)
}

func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res)
}

func (s *RuleStore) Get(ctx context.Context, id int64) (*models.AutomationRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func (s *RuleStore) List(ctx context.Context) ([]models.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func encodeRule(r *models.AutomationRule) ([]byte, []byte, error) {
	conditions := r.Conditions
	if conditions == nil {
		conditions = []models.Condition{}
	}
	c, err := json.Marshal(conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rule conditions: %w", err)
	}
	a, err := json.Marshal(r.Action)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rule action: %w", err)
	}
	return c, a, nil
}

func scanRule(row rowScanner) (*models.AutomationRule, error) {
	var (
		r                  models.AutomationRule
		ruleType           string
		conditions, action []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &ruleType, &conditions, &action, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Type = models.ActionKind(ruleType)
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode rule %d conditions: %w", r.ID, err)
	}
	if err := json.Unmarshal(action, &r.Action); err != nil {
		return nil, fmt.Errorf("decode rule %d action: %w", r.ID, err)
	}
	return &r, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
