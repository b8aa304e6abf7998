package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dualauth-server/src/apperr"
	"dualauth-server/src/db/memory"
	"dualauth-server/src/models"
)

func TestIngestor_FlagsOnlyViolations(t *testing.T) {
	env := newTestEnv(t, alice)
	ctx := context.Background()
	env.activeRule(t, 1000)

	res, err := env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{
		txn("small", 999),
		txn("edge", 1000),
		txn("debit", 1200),
		txn("credit", -1500),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, 2, res.Flagged)

	flagged := map[string]models.AlertTransaction{}
	for _, a := range res.Alerts {
		flagged[a.UpstreamTransactionID] = a
	}
	require.Contains(t, flagged, "debit")
	require.Contains(t, flagged, "credit")
	assert.True(t, flagged["credit"].Amount.IsNegative(), "the provider's sign is preserved")
	assert.Equal(t, env.account.ID, flagged["debit"].AccountID)
	assert.Equal(t, "over 1000", flagged["debit"].RuleName)
}

func TestIngestor_NoActiveRule(t *testing.T) {
	env := newTestEnv(t, alice)
	res, err := env.ingestor.OnNewTransactionBatch(context.Background(), env.bank.ID, []models.Transaction{txn("t1", 1_000_000)})
	require.NoError(t, err)
	assert.Zero(t, res.Flagged)
	assert.Empty(t, res.Alerts)
}

func TestIngestor_Idempotent(t *testing.T) {
	env := newTestEnv(t, alice)
	ctx := context.Background()
	env.activeRule(t, 1000)
	batch := []models.Transaction{txn("t1", 5000), txn("t2", 5000), txn("t1", 5000)}

	first, err := env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Flagged)
	assert.Equal(t, 1, first.Duplicates)

	again, err := env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, batch)
	require.NoError(t, err)
	assert.Zero(t, again.Flagged)
	assert.Equal(t, 3, again.Duplicates)

	n, err := env.alerts.CountPending(ctx, owner, env.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestor_OverlappingBatchesConcurrently(t *testing.T) {
	env := newTestEnv(t, alice)
	ctx := context.Background()
	env.activeRule(t, 100)

	batch := make([]models.Transaction, 0, 30)
	for i := 0; i < 30; i++ {
		batch = append(batch, txn(fmt.Sprintf("t%d", i), 500))
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, batch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := env.alerts.CountPending(ctx, owner, env.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestIngestor_UnknownBankAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingestor.OnNewTransactionBatch(context.Background(), "missing", []models.Transaction{txn("t1", 1)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIngestor_SeesRuleChangesMadeByAnotherServer(t *testing.T) {
	env := newTestEnv(t, alice)
	ctx := context.Background()
	rule := env.activeRule(t, 100)

	res, err := env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{txn("t1", 500)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Flagged)

	// A second server process shares only the store.
	other := NewRuleService(env.store)
	_, err = other.SetActive(ctx, owner, env.account.ID, rule.ID, false)
	require.NoError(t, err)

	res, err = env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{txn("t2", 500)})
	require.NoError(t, err)
	assert.Zero(t, res.Flagged, "a deactivated rule no longer flags")

	th := decimal.NewFromInt(1000)
	replacement, err := other.Create(ctx, owner, env.account.ID, RuleInput{
		Name: "over 1000", Description: "raised limit", Threshold: &th, IsActive: true,
	})
	require.NoError(t, err)

	res, err = env.ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{txn("t3", 500), txn("t4", 5000)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Flagged)
	assert.Equal(t, "t4", res.Alerts[0].UpstreamTransactionID)
	require.NotNil(t, res.Alerts[0].ViolatedRuleID)
	assert.Equal(t, replacement.ID, *res.Alerts[0].ViolatedRuleID)
}

// racingStore deactivates the rule right after each active-rule read, as if
// an owner's write committed while a batch was being evaluated.
type racingStore struct {
	*memory.Store
	deactivate func()
}

func (s *racingStore) GetActiveRule(ctx context.Context, accountID string) (*models.Rule, error) {
	rule, err := s.Store.GetActiveRule(ctx, accountID)
	if s.deactivate != nil {
		s.deactivate()
		s.deactivate = nil
	}
	return rule, err
}

func TestIngestor_WriteDuringBatchReachesNextBatch(t *testing.T) {
	env := newTestEnv(t, alice)
	ctx := context.Background()
	rule := env.activeRule(t, 100)

	store := &racingStore{Store: env.store}
	store.deactivate = func() {
		_, err := env.store.SetRuleActive(ctx, env.account.ID, rule.ID, false)
		require.NoError(t, err)
	}
	ingestor := NewIngestor(store, NewRuleService(store))

	// The batch in flight keeps the rule it read at its start.
	res, err := ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{txn("t1", 500)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flagged)

	res, err = ingestor.OnNewTransactionBatch(ctx, env.bank.ID, []models.Transaction{txn("t2", 500)})
	require.NoError(t, err)
	assert.Zero(t, res.Flagged, "flagged after rule deactivated")
}
