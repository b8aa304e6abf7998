package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dualauth-server/src/models"
)

const alertColumns = `id, bank_account_id, account_id, upstream_transaction_id, name, amount,
	transaction_type, category, violated_rule_id, rule_name, rule_threshold,
	approved_by, rejected_by, is_approved, is_rejected, created_at`

func scanAlert(row scanner) (*models.AlertTransaction, error) {
	var a models.AlertTransaction
	var approvedBy, rejectedBy []int64
	err := row.Scan(
		&a.ID,
		&a.BankAccountID,
		&a.AccountID,
		&a.UpstreamTransactionID,
		&a.Name,
		&a.Amount,
		&a.TransactionType,
		&a.Category,
		&a.ViolatedRuleID,
		&a.RuleName,
		&a.RuleThreshold,
		&approvedBy,
		&rejectedBy,
		&a.IsApproved,
		&a.IsRejected,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ApprovedBy = models.NewVoteSet(approvedBy...)
	a.RejectedBy = models.NewVoteSet(rejectedBy...)
	return &a, nil
}

// RecordAlertIfNew relies on the (bank_account_id, upstream_transaction_id)
// unique constraint, so concurrent ingestion of the same transaction inserts
// one row and every other caller gets nil.
func (s *Store) RecordAlertIfNew(ctx context.Context, alert *models.AlertTransaction) (*models.AlertTransaction, error) {
	var createdAt any
	if !alert.CreatedAt.IsZero() {
		createdAt = alert.CreatedAt
	}
	query := `
		INSERT INTO alert_transactions (
			id, bank_account_id, account_id, upstream_transaction_id, name, amount,
			transaction_type, category, violated_rule_id, rule_name, rule_threshold,
			approved_by, rejected_by, is_approved, is_rejected, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, COALESCE($16::timestamptz, NOW()))
		ON CONFLICT (bank_account_id, upstream_transaction_id) DO NOTHING
		RETURNING ` + alertColumns

	a, err := scanAlert(s.pool.QueryRow(ctx, query,
		uuid.NewString(),
		alert.BankAccountID,
		alert.AccountID,
		alert.UpstreamTransactionID,
		alert.Name,
		alert.Amount,
		alert.TransactionType,
		alert.Category,
		alert.ViolatedRuleID,
		alert.RuleName,
		alert.RuleThreshold,
		alert.ApprovedBy.Slice(),
		alert.RejectedBy.Slice(),
		alert.IsApproved,
		alert.IsRejected,
		createdAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "alert for "+alert.UpstreamTransactionID)
	}
	return a, nil
}

func (s *Store) GetAlert(ctx context.Context, alertID string) (*models.AlertTransaction, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alert_transactions WHERE id = $1`, alertID))
	if err != nil {
		return nil, mapError(err, "alert "+alertID)
	}
	return a, nil
}

// escapeLike quotes the LIKE metacharacters of a search term.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// alertWhere renders the filter as a WHERE clause. Severity is computed from
// the rule snapshot the same way engine.Classify does.
func alertWhere(accountID string, f models.AlertFilter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{accountID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.StartDate.IsZero() {
		conds = append(conds, "created_at >= "+arg(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, "created_at <= "+arg(f.EndDate))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		conds = append(conds, fmt.Sprintf(
			"(name ILIKE %[1]s OR transaction_type ILIKE %[1]s OR category ILIKE %[1]s OR amount::text ILIKE %[1]s)", p))
	}
	switch f.Severity {
	case models.SeverityHigh:
		conds = append(conds, "ABS(amount) > rule_threshold")
	case models.SeverityMedium:
		conds = append(conds, "ABS(amount) > rule_threshold / 2 AND ABS(amount) <= rule_threshold")
	case models.SeverityLow:
		conds = append(conds, "ABS(amount) <= rule_threshold / 2")
	}
	return strings.Join(conds, " AND "), args
}

// ListAlerts returns one page, newest first with pending alerts ahead of
// resolved ones at the same instant, plus the total match count.
func (s *Store) ListAlerts(ctx context.Context, accountID string, filter models.AlertFilter) ([]models.AlertTransaction, int, error) {
	where, args := alertWhere(accountID, filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err, "alerts")
	}

	query := `SELECT ` + alertColumns + ` FROM alert_transactions WHERE ` + where +
		` ORDER BY created_at DESC, (is_approved OR is_rejected) ASC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if off := filter.Offset(); off > 0 {
		query += fmt.Sprintf(" OFFSET %d", off)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "alerts")
	}
	defer rows.Close()

	alerts := make([]models.AlertTransaction, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, mapError(err, "alerts")
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err, "alerts")
	}
	return alerts, total, nil
}

func (s *Store) CountPendingAlerts(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alert_transactions WHERE account_id = $1 AND NOT is_approved AND NOT is_rejected`,
		accountID).Scan(&n)
	if err != nil {
		return 0, mapError(err, "alerts")
	}
	return n, nil
}

// UpdateAlertVotes locks the alert row, reads the roster under a share lock
// on the account and writes the mutated vote state in one transaction, so
// concurrent voters queue instead of overwriting each other.
func (s *Store) UpdateAlertVotes(ctx context.Context, alertID string, mutate func(*models.AlertTransaction, []int64) error) (*models.AlertTransaction, error) {
	var result *models.AlertTransaction

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		alert, err := scanAlert(tx.QueryRow(ctx,
			`SELECT `+alertColumns+` FROM alert_transactions WHERE id = $1 FOR UPDATE`, alertID))
		if err != nil {
			return mapError(err, "alert "+alertID)
		}
		if _, err := lockAccount(ctx, tx, alert.AccountID, "SHARE"); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT user_id FROM account_approvers WHERE account_id = $1 ORDER BY user_id`, alert.AccountID)
		if err != nil {
			return mapError(err, "approvers")
		}
		roster, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return mapError(err, "approvers")
		}

		if err := mutate(alert, roster); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE alert_transactions
			SET approved_by = $2, rejected_by = $3, is_approved = $4, is_rejected = $5
			WHERE id = $1`,
			alertID, alert.ApprovedBy.Slice(), alert.RejectedBy.Slice(), alert.IsApproved, alert.IsRejected)
		if err != nil {
			return mapError(err, "alert "+alertID)
		}
		result = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
