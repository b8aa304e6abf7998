package db

import (
	"context"

	"github.com/google/uuid"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

const bankAccountColumns = `id, account_id, item_id, access_token, name, institution, mask, current_balance, sync_cursor, created_at`

func scanBankAccount(row scanner) (*models.BankAccount, error) {
	var b models.BankAccount
	err := row.Scan(&b.ID, &b.AccountID, &b.ItemID, &b.AccessToken, &b.Name, &b.Institution, &b.Mask, &b.CurrentBalance, &b.SyncCursor, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBankAccount links the account's bank account, replacing an earlier
// link and resetting its sync cursor.
func (s *Store) SaveBankAccount(ctx context.Context, ba *models.BankAccount) (*models.BankAccount, error) {
	query := `
		INSERT INTO bank_accounts (id, account_id, item_id, access_token, name, institution, mask, current_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE
		SET item_id = EXCLUDED.item_id,
			access_token = EXCLUDED.access_token,
			name = EXCLUDED.name,
			institution = EXCLUDED.institution,
			mask = EXCLUDED.mask,
			current_balance = EXCLUDED.current_balance,
			sync_cursor = ''
		RETURNING ` + bankAccountColumns

	b, err := scanBankAccount(s.pool.QueryRow(ctx, query,
		uuid.NewString(), ba.AccountID, ba.ItemID, ba.AccessToken, ba.Name, ba.Institution, ba.Mask, ba.CurrentBalance))
	if err != nil {
		if isUniqueViolation(err, "bank_accounts_item_id_key") {
			return nil, apperr.Conflict("item %s is linked to another account", ba.ItemID)
		}
		return nil, mapError(err, "bank account for account "+ba.AccountID)
	}
	return b, nil
}

func (s *Store) GetBankAccount(ctx context.Context, bankAccountID string) (*models.BankAccount, error) {
	b, err := scanBankAccount(s.pool.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = $1`, bankAccountID))
	if err != nil {
		return nil, mapError(err, "bank account "+bankAccountID)
	}
	return b, nil
}

func (s *Store) GetBankAccountByItemID(ctx context.Context, itemID string) (*models.BankAccount, error) {
	b, err := scanBankAccount(s.pool.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE item_id = $1`, itemID))
	if err != nil {
		return nil, mapError(err, "bank account for item "+itemID)
	}
	return b, nil
}

func (s *Store) GetBankAccountForAccount(ctx context.Context, accountID string) (*models.BankAccount, error) {
	b, err := scanBankAccount(s.pool.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE account_id = $1`, accountID))
	if err != nil {
		return nil, mapError(err, "bank account for account "+accountID)
	}
	return b, nil
}

func (s *Store) UpdateSyncCursor(ctx context.Context, bankAccountID, cursor string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bank_accounts SET sync_cursor = $2 WHERE id = $1`, bankAccountID, cursor)
	if err != nil {
		return mapError(err, "bank account "+bankAccountID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bank account %s not found", bankAccountID)
	}
	return nil
}
