package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dualauth-server/src/db"
	"dualauth-server/src/db/memory"
	"dualauth-server/src/models"
	"dualauth-server/src/plaid"
	"dualauth-server/src/util"
)

const (
	owner int64 = 1
	alice int64 = 2
	bob   int64 = 3
	carol int64 = 4
	eve   int64 = 9
)

type testEnv struct {
	store    *memory.Store
	items    *db.ItemCache
	source   *plaid.MockClient
	cipher   *util.TokenCipher
	rules    *RuleService
	alerts   *AlertService
	ingestor *Ingestor
	sync     *SyncService
	accounts *AccountService

	account *models.Account
	bank    *models.BankAccount
}

func emailOf(id int64) string {
	return fmt.Sprintf("user%d@example.com", id)
}

// newTestEnv builds every service over a fresh memory store, with an
// account owned by owner, the given approvers and a linked bank account.
func newTestEnv(t *testing.T, approvers ...int64) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	items, err := db.NewItemCache(time.Minute)
	require.NoError(t, err)
	t.Cleanup(items.Close)
	cipher, err := util.NewTokenCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	source := &plaid.MockClient{}

	env := &testEnv{store: store, items: items, source: source, cipher: cipher}
	env.rules = NewRuleService(store)
	env.alerts = NewAlertService(store)
	env.ingestor = NewIngestor(store, env.rules)
	env.sync = NewSyncService(store, source, cipher, env.ingestor, items)
	env.accounts = NewAccountService(store, source, cipher)

	for _, id := range append([]int64{owner, eve}, approvers...) {
		_, err := env.accounts.EnsureUser(ctx, id, emailOf(id))
		require.NoError(t, err)
	}
	emails := make([]string, 0, len(approvers))
	for _, id := range approvers {
		emails = append(emails, emailOf(id))
	}
	env.account, err = env.accounts.Create(ctx, owner, AccountInput{
		Name:           "Household",
		Institution:    "First Platypus Bank",
		ApproverEmails: emails,
	})
	require.NoError(t, err)

	env.bank, err = env.accounts.LinkBankAccount(ctx, owner, env.account.ID, "public-sandbox-token")
	require.NoError(t, err)
	return env
}

func (e *testEnv) activeRule(t *testing.T, threshold int64) *models.Rule {
	t.Helper()
	th := decimal.NewFromInt(threshold)
	rule, err := e.rules.Create(context.Background(), owner, e.account.ID, RuleInput{
		Name:        fmt.Sprintf("over %d", threshold),
		Description: "large transfer review",
		Threshold:   &th,
		IsActive:    true,
	})
	require.NoError(t, err)
	return rule
}

// flag ingests one transaction that violates the active rule and returns its alert.
func (e *testEnv) flag(t *testing.T, upstreamID string, amount int64) *models.AlertTransaction {
	t.Helper()
	res, err := e.ingestor.OnNewTransactionBatch(context.Background(), e.bank.ID, []models.Transaction{
		txn(upstreamID, amount),
	})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	return &res.Alerts[0]
}

func txn(upstreamID string, amount int64) models.Transaction {
	return models.Transaction{
		UpstreamID: upstreamID,
		Name:       "Transfer " + upstreamID,
		Amount:     decimal.NewFromInt(amount),
		Type:       "online",
		Category:   "TRANSFER_OUT > TRANSFER_OUT_ACCOUNT_TRANSFER",
		Date:       time.Now(),
	}
}
