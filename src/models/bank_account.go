package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is the Plaid-linked account behind an Account. AccessToken is
// stored encrypted and never serialized.
type BankAccount struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	ItemID         string          `json:"itemId"`
	AccessToken    string          `json:"-"`
	Name           string          `json:"name"`
	Institution    string          `json:"institution"`
	Mask           string          `json:"mask"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	SyncCursor     string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}
