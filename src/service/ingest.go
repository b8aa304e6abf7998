package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"dualauth-server/src/engine"
	"dualauth-server/src/models"
)

const defaultIngestConcurrency = 8

// IngestResult summarizes one batch.
type IngestResult struct {
	Evaluated  int
	Flagged    int
	Duplicates int
	Alerts     []models.AlertTransaction
}

// Ingestor evaluates incoming transactions against the owning account's
// active rule and records an alert for each violation. Re-running a batch is
// safe: the ledger drops alerts it has already recorded.
type Ingestor struct {
	bankAccounts BankAccountRepository
	alerts       AlertRepository
	rules        *RuleService
	concurrency  int
	logger       *slog.Logger
}

func NewIngestor(store Store, rules *RuleService) *Ingestor {
	return &Ingestor{
		bankAccounts: store,
		alerts:       store,
		rules:        rules,
		concurrency:  defaultIngestConcurrency,
		logger:       slog.Default().With("component", "ingest"),
	}
}

// OnNewTransactionBatch runs the evaluator over txns for bankAccountID.
func (in *Ingestor) OnNewTransactionBatch(ctx context.Context, bankAccountID string, txns []models.Transaction) (*IngestResult, error) {
	result := &IngestResult{Evaluated: len(txns)}
	if len(txns) == 0 {
		return result, nil
	}

	bank, err := in.bankAccounts.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return nil, err
	}
	rule, err := in.rules.ActiveRule(ctx, bank.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load active rule: %w", err)
	}
	if rule == nil {
		in.logger.Debug("No active rule, skipping batch", "account_id", bank.AccountID, "count", len(txns))
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)

	for _, txn := range txns {
		v, violated := engine.Evaluate(txn, rule)
		if !violated {
			continue
		}
		alert := engine.NewAlert(bank.ID, bank.AccountID, txn, v)
		g.Go(func() error {
			created, err := in.alerts.RecordAlertIfNew(gctx, alert)
			if err != nil {
				return fmt.Errorf("record alert for %s: %w", alert.UpstreamTransactionID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if created == nil {
				result.Duplicates++
				return nil
			}
			result.Flagged++
			result.Alerts = append(result.Alerts, *created)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if result.Flagged > 0 {
		in.logger.Info("Flagged transactions",
			"bank_account_id", bank.ID,
			"account_id", bank.AccountID,
			"rule_id", rule.ID,
			"flagged", result.Flagged,
			"duplicates", result.Duplicates)
	}
	return result, nil
}
