package engine

import (
	"sort"
	"strings"

	"dualauth-server/src/models"
)

// MatchesFilter applies the search, severity and date-range parts of f to a.
// Search is a case-insensitive substring match over name, transaction type,
// category and the amount's decimal text.
func MatchesFilter(a *models.AlertTransaction, f models.AlertFilter) bool {
	if !f.StartDate.IsZero() && a.CreatedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && a.CreatedAt.After(f.EndDate) {
		return false
	}
	if f.Severity != "" && f.Severity != models.SeverityAll && AlertSeverity(a) != f.Severity {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{a.Name, a.TransactionType, a.Category, a.Amount.String()}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// SortAlerts orders newest first, pending ahead of resolved on equal
// timestamps, and by id for a stable page boundary.
func SortAlerts(alerts []models.AlertTransaction) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := &alerts[i], &alerts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.IsPending() != b.IsPending() {
			return a.IsPending()
		}
		return a.ID > b.ID
	})
}
