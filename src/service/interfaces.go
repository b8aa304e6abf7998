// Package service orchestrates the rule store, alert ledger, consensus
// tracker and ingestion adapter on top of a storage backend.
package service

import (
	"context"

	"dualauth-server/src/models"
)

// AccountRepository persists accounts and their approver rosters.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account, approverIDs []int64) (*models.Account, error)
	// GetAccount returns the account with its approver roster loaded.
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListAccountsForUser(ctx context.Context, userID int64) ([]models.AccountSummary, error)
	AddApprover(ctx context.Context, accountID string, userID int64) error
	RemoveApprover(ctx context.Context, accountID string, userID int64) error
}

// UserRepository stores the users known from verified sessions.
type UserRepository interface {
	// UpsertUser records the session's user by id, refreshing the email.
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// RuleRepository must keep at most one active rule per account. Activation
// (through CreateRule with IsActive or SetRuleActive) deactivates the
// account's other rules in the same atomic unit.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error)
	GetRule(ctx context.Context, ruleID string) (*models.Rule, error)
	SetRuleActive(ctx context.Context, accountID, ruleID string, active bool) (*models.Rule, error)
	UpdateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error)
	DeleteRule(ctx context.Context, accountID, ruleID string) error
	// ListRules returns newest first.
	ListRules(ctx context.Context, accountID string) ([]models.Rule, error)
	// GetActiveRule returns nil, nil when the account has no active rule.
	GetActiveRule(ctx context.Context, accountID string) (*models.Rule, error)
}

// VoteMutator changes an alert's votes given the account's current roster.
type VoteMutator = func(alert *models.AlertTransaction, roster []int64) error

// AlertRepository is the alert ledger.
type AlertRepository interface {
	// RecordAlertIfNew inserts alert unless one already exists for
	// (BankAccountID, UpstreamTransactionID); duplicates return nil, nil.
	RecordAlertIfNew(ctx context.Context, alert *models.AlertTransaction) (*models.AlertTransaction, error)
	GetAlert(ctx context.Context, alertID string) (*models.AlertTransaction, error)
	ListAlerts(ctx context.Context, accountID string, filter models.AlertFilter) ([]models.AlertTransaction, int, error)
	CountPendingAlerts(ctx context.Context, accountID string) (int, error)
	// UpdateAlertVotes runs mutate with the alert locked against concurrent
	// votes and persists the result; if mutate fails nothing is written.
	UpdateAlertVotes(ctx context.Context, alertID string, mutate VoteMutator) (*models.AlertTransaction, error)
}

type BankAccountRepository interface {
	// SaveBankAccount inserts or replaces the account's linked bank account.
	SaveBankAccount(ctx context.Context, bankAccount *models.BankAccount) (*models.BankAccount, error)
	GetBankAccount(ctx context.Context, bankAccountID string) (*models.BankAccount, error)
	GetBankAccountByItemID(ctx context.Context, itemID string) (*models.BankAccount, error)
	GetBankAccountForAccount(ctx context.Context, accountID string) (*models.BankAccount, error)
	UpdateSyncCursor(ctx context.Context, bankAccountID, cursor string) error
}

// Store is the full storage backend.
type Store interface {
	AccountRepository
	UserRepository
	RuleRepository
	AlertRepository
	BankAccountRepository
}

// ItemCache remembers which bank account a Plaid item belongs to.
type ItemCache interface {
	BankAccountID(itemID string) (string, bool)
	SetBankAccountID(itemID, bankAccountID string)
	Invalidate(itemID string)
}
