package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

const ruleColumns = `id, account_id, name, description, threshold, is_active, created_at`

func scanRule(row scanner) (*models.Rule, error) {
	var r models.Rule
	if err := row.Scan(&r.ID, &r.AccountID, &r.Name, &r.Description, &r.Threshold, &r.IsActive, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func deactivateRules(ctx context.Context, tx pgx.Tx, accountID, exceptID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE rules SET is_active = FALSE WHERE account_id = $1 AND is_active AND id <> $2`,
		accountID, exceptID)
	return mapError(err, "rules")
}

// CreateRule inserts the rule. An active rule replaces the account's current
// one inside the same transaction.
func (s *Store) CreateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	var created *models.Rule
	id := uuid.NewString()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, rule.AccountID, "NO KEY UPDATE"); err != nil {
			return err
		}
		if rule.IsActive {
			if err := deactivateRules(ctx, tx, rule.AccountID, id); err != nil {
				return err
			}
		}
		query := `
			INSERT INTO rules (id, account_id, name, description, threshold, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING ` + ruleColumns
		var err error
		created, err = scanRule(tx.QueryRow(ctx, query, id, rule.AccountID, rule.Name, rule.Description, rule.Threshold, rule.IsActive))
		return err
	})
	if err != nil {
		return nil, ruleError(err, "rule")
	}
	return created, nil
}

func (s *Store) GetRule(ctx context.Context, ruleID string) (*models.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, ruleID))
	if err != nil {
		return nil, mapError(err, "rule "+ruleID)
	}
	return r, nil
}

func (s *Store) SetRuleActive(ctx context.Context, accountID, ruleID string, active bool) (*models.Rule, error) {
	var updated *models.Rule

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, accountID, "NO KEY UPDATE"); err != nil {
			return err
		}
		if active {
			if err := deactivateRules(ctx, tx, accountID, ruleID); err != nil {
				return err
			}
		}
		query := `UPDATE rules SET is_active = $3 WHERE id = $1 AND account_id = $2 RETURNING ` + ruleColumns
		var err error
		updated, err = scanRule(tx.QueryRow(ctx, query, ruleID, accountID, active))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("rule %s not found for account %s", ruleID, accountID)
		}
		return err
	})
	if err != nil {
		return nil, ruleError(err, "rule "+ruleID)
	}
	return updated, nil
}

// UpdateRule writes name, description and threshold; the active flag is
// untouched.
func (s *Store) UpdateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	query := `
		UPDATE rules
		SET name = $3, description = $4, threshold = $5
		WHERE id = $1 AND ($2 = '' OR account_id = $2)
		RETURNING ` + ruleColumns
	r, err := scanRule(s.pool.QueryRow(ctx, query, rule.ID, rule.AccountID, rule.Name, rule.Description, rule.Threshold))
	if err != nil {
		return nil, mapError(err, "rule "+rule.ID)
	}
	return r, nil
}

// DeleteRule removes the rule; alerts keep their snapshot and lose the
// reference through ON DELETE SET NULL.
func (s *Store) DeleteRule(ctx context.Context, accountID, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1 AND account_id = $2`, ruleID, accountID)
	if err != nil {
		return mapError(err, "rule "+ruleID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("rule %s not found for account %s", ruleID, accountID)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, accountID string) ([]models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE account_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, mapError(err, "rules")
	}
	defer rows.Close()

	rules := make([]models.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, mapError(err, "rules")
		}
		rules = append(rules, *r)
	}
	return rules, mapError(rows.Err(), "rules")
}

func (s *Store) GetActiveRule(ctx context.Context, accountID string) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE account_id = $1 AND is_active`
	r, err := scanRule(s.pool.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "active rule")
	}
	return r, nil
}

// ruleError reports a hit on the one-active-rule index as a conflict; the
// account lock makes it unreachable in practice.
func ruleError(err error, what string) error {
	if isUniqueViolation(err, "uniq_rules_one_active") {
		return apperr.Conflict("another rule was activated concurrently")
	}
	return mapError(err, what)
}
