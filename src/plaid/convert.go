package plaid

import (
	"strings"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"

	"dualauth-server/src/models"
)

// ToTransaction narrows a Plaid transaction to the evaluator's input. The
// amount keeps Plaid's sign convention (positive = money out).
func ToTransaction(pt plaid.Transaction) models.Transaction {
	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		date = time.Time{}
	}

	txType := pt.GetPaymentChannel()
	if txType == "" {
		txType = "unknown"
	}

	return models.Transaction{
		UpstreamID: pt.GetTransactionId(),
		AccountID:  pt.GetAccountId(),
		Name:       pt.GetName(),
		Amount:     decimal.NewFromFloat(pt.GetAmount()),
		Type:       txType,
		Category:   categoryPath(pt.GetPersonalFinanceCategory()),
		Date:       date,
	}
}

func categoryPath(pfc plaid.PersonalFinanceCategory) string {
	parts := make([]string, 0, 2)
	if p := pfc.GetPrimary(); p != "" {
		parts = append(parts, p)
	}
	if d := pfc.GetDetailed(); d != "" && d != pfc.GetPrimary() {
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return "Uncategorized"
	}
	return strings.Join(parts, " > ")
}
