package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dualauth-server/src/db"
	"dualauth-server/src/db/memory"
	"dualauth-server/src/handlers"
	"dualauth-server/src/models"
	"dualauth-server/src/plaid"
	"dualauth-server/src/service"
	"dualauth-server/src/util"
)

const jwtSecret = "router-test-secret"

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(context.Context, []byte, http.Header) error { return f.err }

type harness struct {
	t      *testing.T
	router http.Handler
	source *plaid.MockClient
}

func newHarness(t *testing.T, verifier handlers.WebhookVerifier) *harness {
	t.Helper()
	store := memory.New()
	items, err := db.NewItemCache(time.Minute)
	require.NoError(t, err)
	t.Cleanup(items.Close)
	cipher, err := util.NewTokenCipher(strings.Repeat("cd", 32))
	require.NoError(t, err)
	source := &plaid.MockClient{}

	rules := service.NewRuleService(store)
	svc := Services{
		Accounts: service.NewAccountService(store, source, cipher),
		Rules:    rules,
		Alerts:   service.NewAlertService(store),
		Sync:     service.NewSyncService(store, source, cipher, service.NewIngestor(store, rules), items),
		Verifier: verifier,
	}
	router := NewRouter(svc, Options{JWTSecret: jwtSecret, AllowedOrigins: []string{"http://localhost:3000"}})
	return &harness{t: t, router: router, source: source}
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   fmt.Sprintf("user%d@example.com", userID),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

// do sends a request as userID (0 means anonymous) and decodes the JSON
// response into out when out is non-nil.
func (h *harness) do(method, path string, userID int64, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(h.t, userID))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

const (
	owner int64 = 1
	alice int64 = 2
	bob   int64 = 3
)

func (h *harness) setupAccount() string {
	h.t.Helper()
	// Approvers are known once they have signed in.
	for _, id := range []int64{alice, bob} {
		require.Equal(h.t, http.StatusOK, h.do(http.MethodGet, "/api/accounts", id, nil, nil))
	}

	var account models.Account
	code := h.do(http.MethodPost, "/api/accounts", owner, map[string]any{
		"name":           "Household",
		"institution":    "First Platypus Bank",
		"approverEmails": []string{"user2@example.com"},
	}, &account)
	require.Equal(h.t, http.StatusCreated, code)
	require.Len(h.t, account.Approvers, 1)

	code = h.do(http.MethodPost, "/api/plaid/exchange-public-token?accountId="+account.ID, owner,
		map[string]string{"public_token": "public-sandbox-1"}, nil)
	require.Equal(h.t, http.StatusCreated, code)

	code = h.do(http.MethodPost, "/api/rules?accountId="+account.ID, owner, map[string]any{
		"name":        "Large transfers",
		"description": "anything over 1000",
		"threshold":   1000,
		"isActive":    true,
	}, nil)
	require.Equal(h.t, http.StatusCreated, code)
	return account.ID
}

func (h *harness) fireWebhook() int {
	h.t.Helper()
	return h.do(http.MethodPost, "/api/plaid/webhook", 0, map[string]string{
		"webhook_type": "TRANSACTIONS",
		"webhook_code": "SYNC_UPDATES_AVAILABLE",
		"item_id":      "item-mock",
	}, nil)
}

func feedOnce(source *plaid.MockClient, txns ...models.Transaction) {
	source.SyncTransactionsFn = func(_ context.Context, _ string, cursor string) (*plaid.SyncPage, error) {
		if cursor == "" {
			return &plaid.SyncPage{Added: txns, NextCursor: "c1"}, nil
		}
		return &plaid.SyncPage{NextCursor: cursor}, nil
	}
}

func txn(id string, amount int64) models.Transaction {
	return models.Transaction{UpstreamID: id, Name: "Wire " + id, Amount: decimal.NewFromInt(amount), Type: "online", Category: "TRANSFER_OUT"}
}

func TestRouter_FlagAndApproveFlow(t *testing.T) {
	h := newHarness(t, nil)
	accountID := h.setupAccount()
	feedOnce(h.source, txn("t1", 5000), txn("t2", 20))

	require.Equal(t, http.StatusOK, h.fireWebhook())

	var page service.AlertPage
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/fraud-alert?accountId="+accountID, alice, nil, &page))
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, 1, page.Pagination.Total)
	alertID := page.Transactions[0].ID

	var count map[string]int
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/fraud-alert/unapproved?accountId="+accountID, owner, nil, &count))
	assert.Equal(t, 1, count["count"])

	// bob signed in but is not on the roster
	var errBody map[string]any
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/transactions/alert-transactions/"+alertID, bob, nil, &errBody))
	assert.Equal(t, "not found", errBody["error"])
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/transactions/alert-transactions/"+alertID+"/approve", bob, nil, nil))

	var alert models.AlertTransaction
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/transactions/alert-transactions/"+alertID+"/approve", alice, nil, &alert))
	assert.True(t, alert.IsApproved)
	assert.False(t, alert.IsRejected)

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/transactions/alert-transactions/"+alertID+"/approve", alice, nil, nil))

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/transactions/alert-transactions/"+alertID+"/reject", alice, nil, &alert))
	assert.True(t, alert.IsRejected)
	assert.False(t, alert.IsApproved)

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/fraud-alert/unapproved?accountId="+accountID, owner, nil, &count))
	assert.Equal(t, 0, count["count"])

	// replayed webhook does not duplicate alerts
	h.source.SyncTransactionsFn = func(_ context.Context, _ string, _ string) (*plaid.SyncPage, error) {
		return &plaid.SyncPage{Added: []models.Transaction{txn("t1", 5000)}, NextCursor: "c2"}, nil
	}
	require.Equal(t, http.StatusOK, h.fireWebhook())
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/fraud-alert?accountId="+accountID, owner, nil, &page))
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestRouter_RuleEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	accountID := h.setupAccount()

	var rules []models.Rule
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/rules?accountId="+accountID, alice, nil, &rules))
	require.Len(t, rules, 1)
	first := rules[0]
	assert.True(t, first.IsActive)

	var errBody map[string]any
	code := h.do(http.MethodPost, "/api/rules?accountId="+accountID, owner, map[string]any{"isActive": true}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errBody, "details")

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/rules?accountId="+accountID, alice, map[string]any{
		"name": "x", "description": "y", "threshold": 1,
	}, nil), "approvers cannot write rules")

	var second models.Rule
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/rules?accountId="+accountID, owner, map[string]any{
		"name": "Small", "description": "over 50", "threshold": "50",
	}, &second))
	assert.False(t, second.IsActive)

	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/api/rules/make-active?accountId="+accountID+"&ruleId="+second.ID, owner,
		map[string]bool{"isActive": true}, &second))
	assert.True(t, second.IsActive)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/rules/make-active?accountId="+accountID+"&ruleId="+second.ID, owner,
		map[string]string{}, nil))

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/rules?accountId="+accountID, owner, nil, &rules))
	active := 0
	for _, r := range rules {
		if r.IsActive {
			active++
			assert.Equal(t, second.ID, r.ID)
		}
	}
	assert.Equal(t, 1, active)

	var updated models.Rule
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/api/rules?ruleId="+first.ID, owner, map[string]any{
		"name": "Large transfers", "description": "over 2000", "threshold": 2000,
	}, &updated))
	assert.True(t, decimal.NewFromInt(2000).Equal(updated.Threshold))

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/api/rules?accountId="+accountID+"&ruleId="+first.ID, owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/rules?accountId="+accountID+"&ruleId="+first.ID, owner, nil, nil))
}

func TestRouter_AccountEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	accountID := h.setupAccount()

	var summaries []models.AccountSummary
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/accounts", alice, nil, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, models.RoleApprover, summaries[0].UserRole)

	var details service.AccountDetails
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/accounts/details?accountId="+accountID, owner, nil, &details))
	require.NotNil(t, details.BankAccount)
	assert.Equal(t, "item-mock", details.BankAccount.ItemID)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/accounts/details?accountId="+accountID, bob, nil, nil))

	var account models.Account
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/accounts/approver?accountId="+accountID, owner,
		map[string]string{"email": "user3@example.com"}, &account))
	assert.Len(t, account.Approvers, 2)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/accounts/approver?accountId="+accountID, owner,
		map[string]string{"email": "user3@example.com"}, nil))

	var approvers []models.User
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/accounts/approver?accountId="+accountID, bob, nil, &approvers))
	assert.Len(t, approvers, 2)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/api/accounts/approver?accountId="+accountID+"&approverId=3", owner, nil, &account))
	assert.Len(t, account.Approvers, 1)

	feedOnce(h.source, txn("t9", 9000))
	var result service.SyncResult
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/accounts/sync?accountId="+accountID, owner, nil, &result))
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/accounts/sync?accountId="+accountID, alice, nil, nil))
}

func TestRouter_AuthAndHealth(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/rules", 0, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/fraud-alert", 0, nil, nil))

	var me models.User
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/user", owner, nil, &me))
	assert.Equal(t, "user1@example.com", me.Email)
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/api/user", owner, map[string]string{"name": "Olive Owner"}, &me))
	assert.Equal(t, "Olive Owner", me.Name)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/user", owner, map[string]string{"name": " "}, nil))

	var link map[string]string
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/plaid/create-link-token", owner, nil, &link))
	assert.Equal(t, "link-sandbox-mock", link["link_token"])
}

func TestRouter_Webhook(t *testing.T) {
	t.Run("ignored codes are acknowledged", func(t *testing.T) {
		h := newHarness(t, nil)
		var body map[string]string
		code := h.do(http.MethodPost, "/api/plaid/webhook", 0, map[string]string{
			"webhook_type": "ITEM", "webhook_code": "ERROR", "item_id": "item-mock",
		}, &body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ignored", body["status"])
	})

	t.Run("unknown item", func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Equal(t, http.StatusNotFound, h.fireWebhook())
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := newHarness(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/plaid/webhook", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failed verification", func(t *testing.T) {
		h := newHarness(t, fakeVerifier{err: errors.New("bad signature")})
		assert.Equal(t, http.StatusUnauthorized, h.fireWebhook())
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setupAccount()
		h.source.SyncTransactionsFn = func(context.Context, string, string) (*plaid.SyncPage, error) {
			return nil, plaid.ErrMutationDuringPagination
		}
		assert.Equal(t, http.StatusBadGateway, h.fireWebhook())
	})
}

func TestRouter_DemoModeBlocksWrites(t *testing.T) {
	router := NewRouter(Services{}, Options{JWTSecret: jwtSecret, DemoMode: true})
	req := httptest.NewRequest(http.MethodPost, "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, owner))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
