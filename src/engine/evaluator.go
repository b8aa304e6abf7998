// Package engine holds the pure decision logic: rule evaluation, severity
// bucketing and the approve/reject consensus state machine. Nothing here
// touches storage, so every function is safe to call concurrently.
package engine

import (
	"github.com/shopspring/decimal"

	"dualauth-server/src/models"
)

// Violation records that a transaction exceeded a rule's threshold.
type Violation struct {
	RuleID        string
	RuleName      string
	RuleThreshold decimal.Decimal
	Amount        decimal.Decimal
}

// Evaluate checks txn against the account's active rule. A nil or inactive
// rule never produces a violation. The comparison uses the absolute amount so
// large credits are reviewed as well as large debits.
func Evaluate(txn models.Transaction, rule *models.Rule) (Violation, bool) {
	if rule == nil || !rule.IsActive {
		return Violation{}, false
	}
	if txn.Amount.Abs().LessThanOrEqual(rule.Threshold) {
		return Violation{}, false
	}
	return Violation{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		RuleThreshold: rule.Threshold,
		Amount:        txn.Amount,
	}, true
}

// NewAlert builds the alert record for a violation. Ids and timestamps are
// assigned by the store.
func NewAlert(bankAccountID, accountID string, txn models.Transaction, v Violation) *models.AlertTransaction {
	ruleID := v.RuleID
	return &models.AlertTransaction{
		BankAccountID:         bankAccountID,
		AccountID:             accountID,
		UpstreamTransactionID: txn.UpstreamID,
		Name:                  txn.Name,
		Amount:                txn.Amount,
		TransactionType:       txn.Type,
		Category:              txn.Category,
		ViolatedRuleID:        &ruleID,
		RuleName:              v.RuleName,
		RuleThreshold:         v.RuleThreshold,
		ApprovedBy:            models.NewVoteSet(),
		RejectedBy:            models.NewVoteSet(),
	}
}
