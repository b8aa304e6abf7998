package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dualauth-server/src/models"
)

func filterAlert(amount string, created time.Time) *models.AlertTransaction {
	return &models.AlertTransaction{
		ID:              "a",
		Name:            "WIRE TRANSFER ACME",
		Amount:          decimal.RequireFromString(amount),
		TransactionType: "online",
		Category:        "TRANSFER_OUT > TRANSFER_OUT_WIRE",
		RuleThreshold:   decimal.NewFromInt(1000),
		CreatedAt:       created,
	}
}

func TestMatchesFilter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := filterAlert("1500", now)

	tests := []struct {
		name   string
		filter models.AlertFilter
		want   bool
	}{
		{name: "empty filter", filter: models.AlertFilter{}, want: true},
		{name: "search name", filter: models.AlertFilter{Search: "acme"}, want: true},
		{name: "search type", filter: models.AlertFilter{Search: "ONLINE"}, want: true},
		{name: "search category", filter: models.AlertFilter{Search: "wire"}, want: true},
		{name: "search amount", filter: models.AlertFilter{Search: "150"}, want: true},
		{name: "search miss", filter: models.AlertFilter{Search: "grocery"}, want: false},
		{name: "severity high", filter: models.AlertFilter{Severity: models.SeverityHigh}, want: true},
		{name: "severity low", filter: models.AlertFilter{Severity: models.SeverityLow}, want: false},
		{name: "severity all", filter: models.AlertFilter{Severity: models.SeverityAll}, want: true},
		{name: "inside range", filter: models.AlertFilter{StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}, want: true},
		{name: "before range", filter: models.AlertFilter{StartDate: now.Add(time.Minute)}, want: false},
		{name: "after range", filter: models.AlertFilter{EndDate: now.Add(-time.Minute)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilter(a, tt.filter))
		})
	}
}

func TestSortAlerts(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alerts := []models.AlertTransaction{
		{ID: "old", CreatedAt: t0.Add(-time.Hour)},
		{ID: "resolved", CreatedAt: t0, IsApproved: true},
		{ID: "pending", CreatedAt: t0},
		{ID: "newest", CreatedAt: t0.Add(time.Hour), IsRejected: true},
	}
	SortAlerts(alerts)

	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"newest", "pending", "resolved", "old"}, ids)
}
