package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertStatus is the aggregate state of an alert.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertApproved AlertStatus = "approved"
	AlertRejected AlertStatus = "rejected"
)

// AlertTransaction is a flagged upstream transaction awaiting sign-off.
// RuleName and RuleThreshold snapshot the violated rule at creation time;
// ViolatedRuleID is nil once that rule is deleted.
type AlertTransaction struct {
	ID                    string          `json:"id"`
	BankAccountID         string          `json:"bankAccountId"`
	AccountID             string          `json:"accountId"`
	UpstreamTransactionID string          `json:"transactionId"`
	Name                  string          `json:"name"`
	Amount                decimal.Decimal `json:"amount"`
	TransactionType       string          `json:"transactionType"`
	Category              string          `json:"category"`
	ViolatedRuleID        *string         `json:"violatedRuleId"`
	RuleName              string          `json:"ruleName"`
	RuleThreshold         decimal.Decimal `json:"ruleThreshold"`
	ApprovedBy            VoteSet         `json:"approvedBy"`
	RejectedBy            VoteSet         `json:"rejectedBy"`
	IsApproved            bool            `json:"isApproved"`
	IsRejected            bool            `json:"isRejected"`
	CreatedAt             time.Time       `json:"createdAt"`
}

func (a *AlertTransaction) Status() AlertStatus {
	switch {
	case a.IsApproved:
		return AlertApproved
	case a.IsRejected:
		return AlertRejected
	default:
		return AlertPending
	}
}

func (a *AlertTransaction) IsPending() bool {
	return !a.IsApproved && !a.IsRejected
}
