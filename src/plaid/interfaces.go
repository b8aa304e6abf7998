package plaid

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"dualauth-server/src/models"
)

// ErrMutationDuringPagination means the item changed while a sync was paging;
// the caller must restart from the cursor it started with.
var ErrMutationDuringPagination = errors.New("transactions changed during sync pagination")

// SyncPage is one page of the /transactions/sync feed, already narrowed to
// the fields the rule evaluator consumes.
type SyncPage struct {
	Added      []models.Transaction
	Modified   []models.Transaction
	Removed    []string
	NextCursor string
	HasMore    bool
}

// TransactionSource serves the incremental transaction feed for an item.
type TransactionSource interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
}

// LinkedItem is the result of exchanging a Link public token.
type LinkedItem struct {
	AccessToken    string
	ItemID         string
	AccountName    string
	Mask           string
	CurrentBalance decimal.Decimal
}

// Linker drives the Plaid Link flow.
type Linker interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error)
}
