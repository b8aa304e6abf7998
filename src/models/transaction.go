package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the narrow form of an upstream transaction that the rule
// evaluator consumes. Amount keeps the provider's sign: Plaid reports money
// leaving the account as positive and money arriving as negative.
type Transaction struct {
	UpstreamID string          `json:"transactionId"`
	AccountID  string          `json:"accountId"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"transactionType"`
	Category   string          `json:"category"`
	Date       time.Time       `json:"date"`
}
