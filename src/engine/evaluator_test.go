package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dualauth-server/src/models"
)

func activeRule(threshold int64) *models.Rule {
	return &models.Rule{
		ID:        "rule-1",
		AccountID: "acct-1",
		Name:      "Large payments",
		Threshold: decimal.NewFromInt(threshold),
		IsActive:  true,
	}
}

func txn(id string, amount string) models.Transaction {
	return models.Transaction{
		UpstreamID: id,
		Amount:     decimal.RequireFromString(amount),
		Type:       "online",
		Category:   "TRANSFER_OUT",
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		rule      *models.Rule
		name      string
		amount    string
		violation bool
	}{
		{name: "debit above threshold", rule: activeRule(1000), amount: "1200", violation: true},
		{name: "exactly at threshold", rule: activeRule(1000), amount: "1000", violation: false},
		{name: "below threshold", rule: activeRule(1000), amount: "999.99", violation: false},
		// Plaid reports incoming money as negative; large credits are still reviewed.
		{name: "credit above threshold", rule: activeRule(1000), amount: "-1500", violation: true},
		{name: "credit below threshold", rule: activeRule(1000), amount: "-20", violation: false},
		{name: "fractional cents over", rule: activeRule(1000), amount: "1000.01", violation: true},
		{name: "zero threshold flags any movement", rule: activeRule(0), amount: "0.01", violation: true},
		{name: "no rule", rule: nil, amount: "1000000", violation: false},
		{name: "inactive rule", rule: &models.Rule{ID: "r", Threshold: decimal.NewFromInt(1), IsActive: false}, amount: "50", violation: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Evaluate(txn("t1", tt.amount), tt.rule)
			assert.Equal(t, tt.violation, ok)
			if ok {
				assert.Equal(t, tt.rule.ID, v.RuleID)
				assert.True(t, v.Amount.Equal(decimal.RequireFromString(tt.amount)), "amount keeps upstream sign")
			}
		})
	}
}

func TestNewAlert_SnapshotsRule(t *testing.T) {
	rule := activeRule(1000)
	tx := txn("t1", "1200")
	v, ok := Evaluate(tx, rule)
	require.True(t, ok)

	alert := NewAlert("bank-1", "acct-1", tx, v)
	require.NotNil(t, alert.ViolatedRuleID)
	assert.Equal(t, "rule-1", *alert.ViolatedRuleID)
	assert.Equal(t, "Large payments", alert.RuleName)
	assert.True(t, alert.RuleThreshold.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "t1", alert.UpstreamTransactionID)
	assert.False(t, alert.IsApproved)
	assert.False(t, alert.IsRejected)
	assert.Empty(t, alert.ApprovedBy)
	assert.Empty(t, alert.RejectedBy)
}
