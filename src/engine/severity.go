package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dualauth-server/src/models"
)

var two = decimal.NewFromInt(2)

// Classify buckets |amount| against threshold: high above it, medium above
// half of it, low otherwise. It is a display-time derivation only.
func Classify(amount, threshold decimal.Decimal) models.Severity {
	abs := amount.Abs()
	switch {
	case abs.GreaterThan(threshold):
		return models.SeverityHigh
	case abs.GreaterThan(threshold.Div(two)):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// AlertSeverity classifies an alert against its rule snapshot.
func AlertSeverity(a *models.AlertTransaction) models.Severity {
	return Classify(a.Amount, a.RuleThreshold)
}

// ParseSeverity accepts "", "all", "high", "medium" and "low".
func ParseSeverity(s string) (models.Severity, error) {
	switch sev := models.Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case "", models.SeverityAll:
		return models.SeverityAll, nil
	case models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}
