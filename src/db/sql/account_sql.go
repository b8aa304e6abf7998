package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

const accountColumns = `a.id, a.user_id, a.name, a.institution, a.created_at`

func (s *Store) CreateAccount(ctx context.Context, account *models.Account, approverIDs []int64) (*models.Account, error) {
	id := account.ID
	if id == "" {
		id = uuid.NewString()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, user_id, name, institution) VALUES ($1, $2, $3, $4)`,
			id, account.UserID, account.Name, account.Institution)
		if err != nil {
			return mapError(err, "account "+id)
		}

		for _, approverID := range approverIDs {
			if approverID == account.UserID {
				return apperr.Validation("the account owner cannot be an approver")
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO account_approvers (account_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, approverID)
			if err != nil {
				if mapped := mapError(err, "approver"); apperr.KindOf(mapped) == apperr.KindNotFound {
					return apperr.Validation("approver %d does not exist", approverID)
				}
				return mapError(err, "approver")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`

	var acc models.Account
	err := s.pool.QueryRow(ctx, query, accountID).Scan(&acc.ID, &acc.UserID, &acc.Name, &acc.Institution, &acc.CreatedAt)
	if err != nil {
		return nil, mapError(err, "account "+accountID)
	}

	approvers, err := loadApprovers(ctx, s.pool, []string{accountID})
	if err != nil {
		return nil, err
	}
	acc.Approvers = approvers[accountID]
	if acc.Approvers == nil {
		acc.Approvers = []models.User{}
	}
	return &acc, nil
}

// loadApprovers returns the rosters of the given accounts keyed by account id.
func loadApprovers(ctx context.Context, q querier, accountIDs []string) (map[string][]models.User, error) {
	query := `
		SELECT aa.account_id, u.id, u.email, u.name, u.created_at
		FROM account_approvers aa
		JOIN users u ON u.id = aa.user_id
		WHERE aa.account_id = ANY($1)
		ORDER BY u.id
	`
	rows, err := q.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, mapError(err, "approvers")
	}
	defer rows.Close()

	out := make(map[string][]models.User, len(accountIDs))
	for rows.Next() {
		var accountID string
		var u models.User
		if err := rows.Scan(&accountID, &u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, mapError(err, "approvers")
		}
		out[accountID] = append(out[accountID], u)
	}
	return out, mapError(rows.Err(), "approvers")
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID int64) ([]models.AccountSummary, error) {
	query := `
		SELECT ` + accountColumns + `,
			CASE WHEN a.user_id = $1 THEN 'primary' ELSE 'approver' END
		FROM accounts a
		WHERE a.user_id = $1
			OR EXISTS (SELECT 1 FROM account_approvers aa WHERE aa.account_id = a.id AND aa.user_id = $1)
		ORDER BY a.created_at DESC, a.id
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "accounts")
	}
	defer rows.Close()

	summaries := make([]models.AccountSummary, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var sum models.AccountSummary
		var role string
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Name, &sum.Institution, &sum.CreatedAt, &role); err != nil {
			return nil, mapError(err, "accounts")
		}
		sum.UserRole = models.Role(role)
		summaries = append(summaries, sum)
		ids = append(ids, sum.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "accounts")
	}

	approvers, err := loadApprovers(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Approvers = approvers[summaries[i].ID]
		if summaries[i].Approvers == nil {
			summaries[i].Approvers = []models.User{}
		}
	}
	return summaries, nil
}

func (s *Store) AddApprover(ctx context.Context, accountID string, userID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ownerID, err := lockAccount(ctx, tx, accountID, "NO KEY UPDATE")
		if err != nil {
			return err
		}
		if ownerID == userID {
			return apperr.Validation("the account owner cannot be an approver")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO account_approvers (account_id, user_id) VALUES ($1, $2)`,
			accountID, userID)
		if err != nil {
			return mapError(err, fmt.Sprintf("approver %d", userID))
		}
		return nil
	})
}

func (s *Store) RemoveApprover(ctx context.Context, accountID string, userID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, accountID, "NO KEY UPDATE"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM account_approvers WHERE account_id = $1 AND user_id = $2`,
			accountID, userID)
		if err != nil {
			return mapError(err, "approver")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("user %d is not an approver", userID)
		}
		return nil
	})
}
