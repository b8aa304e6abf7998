package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule is a threshold policy for one account. At most one rule per account is active.
type Rule struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Threshold   decimal.Decimal `json:"threshold"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
}
