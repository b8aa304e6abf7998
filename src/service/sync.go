package service

import (
	"context"
	"errors"
	"log/slog"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
	"dualauth-server/src/plaid"
)

const defaultSyncAttempts = 3

// TokenCipher seals bank access credentials at rest.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SyncResult summarizes a full pass over an item's transaction feed.
type SyncResult struct {
	BankAccountID string `json:"bankAccountId"`
	Pages         int    `json:"pages"`
	Added         int    `json:"added"`
	Modified      int    `json:"modified"`
	Removed       int    `json:"removed"`
	Flagged       int    `json:"flagged"`
	Duplicates    int    `json:"duplicates"`
}

// SyncService pulls new transactions for linked items and feeds them to the
// Ingestor.
type SyncService struct {
	accounts     AccountRepository
	bankAccounts BankAccountRepository
	source       plaid.TransactionSource
	cipher       TokenCipher
	ingestor     *Ingestor
	items        ItemCache
	maxAttempts  int
	logger       *slog.Logger
}

// NewSyncService builds a SyncService. items may be nil.
func NewSyncService(store Store, source plaid.TransactionSource, cipher TokenCipher, ingestor *Ingestor, items ItemCache) *SyncService {
	return &SyncService{
		accounts:     store,
		bankAccounts: store,
		source:       source,
		cipher:       cipher,
		ingestor:     ingestor,
		items:        items,
		maxAttempts:  defaultSyncAttempts,
		logger:       slog.Default().With("component", "sync"),
	}
}

// SyncItem syncs the bank account linked to a Plaid item. Webhooks call this.
func (s *SyncService) SyncItem(ctx context.Context, itemID string) (*SyncResult, error) {
	if itemID == "" {
		return nil, apperr.Validation("item_id is required")
	}
	bank, err := s.bankAccountForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.syncBankAccount(ctx, bank)
}

// bankAccountForItem resolves itemID through the cache when it can. The row
// is always read from the store, and a cached id whose row no longer carries
// the item (relinked or removed) is dropped.
func (s *SyncService) bankAccountForItem(ctx context.Context, itemID string) (*models.BankAccount, error) {
	if s.items != nil {
		if id, ok := s.items.BankAccountID(itemID); ok {
			bank, err := s.bankAccounts.GetBankAccount(ctx, id)
			switch {
			case err == nil && bank.ItemID == itemID:
				return bank, nil
			case err != nil && !errors.Is(err, apperr.ErrNotFound):
				return nil, err
			}
			s.items.Invalidate(itemID)
		}
	}

	bank, err := s.bankAccounts.GetBankAccountByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if s.items != nil {
		s.items.SetBankAccountID(itemID, bank.ID)
	}
	return bank, nil
}

// SyncAccount is the owner's manual trigger.
func (s *SyncService) SyncAccount(ctx context.Context, userID int64, accountID string) (*SyncResult, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	if _, err := requireOwner(ctx, s.accounts, accountID, userID); err != nil {
		return nil, err
	}
	bank, err := s.bankAccounts.GetBankAccountForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.syncBankAccount(ctx, bank)
}

// syncBankAccount pages from the stored cursor to the end of the feed and
// saves the new cursor only once every page was ingested. If the item
// changes mid-pagination the whole pass restarts from the stored cursor.
func (s *SyncService) syncBankAccount(ctx context.Context, bank *models.BankAccount) (*SyncResult, error) {
	token, err := s.cipher.Decrypt(bank.AccessToken)
	if err != nil {
		return nil, apperr.Internal(err, "decrypt access token for bank account %s", bank.ID)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, cursor, err := s.paginate(ctx, bank, token)
		if errors.Is(err, plaid.ErrMutationDuringPagination) {
			s.logger.Warn("Item changed during sync, restarting",
				"bank_account_id", bank.ID,
				"attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.bankAccounts.UpdateSyncCursor(ctx, bank.ID, cursor); err != nil {
			return nil, err
		}
		s.logger.Info("Synced bank account",
			"bank_account_id", bank.ID,
			"pages", result.Pages,
			"added", result.Added,
			"modified", result.Modified,
			"removed", result.Removed,
			"flagged", result.Flagged)
		return result, nil
	}
	return nil, apperr.Upstream(plaid.ErrMutationDuringPagination,
		"sync for bank account %s did not settle after %d attempts", bank.ID, s.maxAttempts)
}

func (s *SyncService) paginate(ctx context.Context, bank *models.BankAccount, token string) (*SyncResult, string, error) {
	result := &SyncResult{BankAccountID: bank.ID}
	cursor := bank.SyncCursor

	for {
		page, err := s.source.SyncTransactions(ctx, token, cursor)
		if err != nil {
			return nil, "", err
		}
		result.Pages++
		result.Added += len(page.Added)
		result.Modified += len(page.Modified)
		result.Removed += len(page.Removed)

		batch := make([]models.Transaction, 0, len(page.Added)+len(page.Modified))
		batch = append(batch, page.Added...)
		batch = append(batch, page.Modified...)
		ingested, err := s.ingestor.OnNewTransactionBatch(ctx, bank.ID, batch)
		if err != nil {
			return nil, "", err
		}
		result.Flagged += ingested.Flagged
		result.Duplicates += ingested.Duplicates

		if len(page.Removed) > 0 {
			s.logger.Debug("Upstream removed transactions; alerts are kept",
				"bank_account_id", bank.ID,
				"removed", page.Removed)
		}

		cursor = page.NextCursor
		if !page.HasMore {
			return result, cursor, nil
		}
	}
}
