// Package plaid wraps the Plaid API for linking items, syncing transactions
// and fetching webhook verification keys.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
	"dualauth-server/src/util"
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	WebhookURL  string
	ClientName  string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required")
	}
	switch c.Environment {
	case "sandbox", "production":
	case "":
		return fmt.Errorf("plaid environment is required")
	default:
		return fmt.Errorf("invalid Plaid environment %q: must be sandbox or production", c.Environment)
	}
	return nil
}

// Client implements TransactionSource, Linker and util.VerificationKeyFetcher.
type Client struct {
	api        *plaid.APIClient
	logger     *slog.Logger
	retryOpts  util.RetryOptions
	webhookURL string
	clientName string
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	name := cfg.ClientName
	if name == "" {
		name = "Dual Auth"
	}

	return &Client{
		api:        plaid.NewAPIClient(configuration),
		logger:     slog.Default().With("component", "plaid"),
		webhookURL: cfg.WebhookURL,
		clientName: name,
		retryOpts: util.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// SyncTransactions fetches one page of /transactions/sync starting at cursor.
// An empty cursor starts from the beginning of the item's history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	var resp plaid.TransactionsSyncResponse

	err := util.WithRetry(ctx, func() error {
		request := plaid.NewTransactionsSyncRequest(accessToken)
		if cursor != "" {
			request.SetCursor(cursor)
		}
		r, _, err := c.api.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
		if err != nil {
			return c.classify(err, "transactions sync")
		}
		resp = r
		return nil
	}, c.retryOpts)
	if err != nil {
		if errors.Is(err, ErrMutationDuringPagination) {
			return nil, err
		}
		return nil, apperr.Upstream(err, "transactions sync failed")
	}

	page := &SyncPage{
		Added:      make([]models.Transaction, 0, len(resp.GetAdded())),
		Modified:   make([]models.Transaction, 0, len(resp.GetModified())),
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}
	for _, pt := range resp.GetAdded() {
		page.Added = append(page.Added, ToTransaction(pt))
	}
	for _, pt := range resp.GetModified() {
		page.Modified = append(page.Modified, ToTransaction(pt))
	}
	for _, rt := range resp.GetRemoved() {
		page.Removed = append(page.Removed, rt.GetTransactionId())
	}

	c.logger.Debug("Fetched sync page",
		"added", len(page.Added),
		"modified", len(page.Modified),
		"removed", len(page.Removed),
		"has_more", page.HasMore)

	return page, nil
}

func (c *Client) linkTokenRequest(clientUserID string) *plaid.LinkTokenCreateRequest {
	request := plaid.NewLinkTokenCreateRequest(
		c.clientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
	)
	request.SetUser(plaid.LinkTokenCreateRequestUser{ClientUserId: clientUserID})
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	if c.webhookURL != "" {
		request.SetWebhook(c.webhookURL)
	}
	return request
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	request := c.linkTokenRequest(clientUserID)

	resp, _, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", apperr.Upstream(c.classify(err, "link token create"), "link token create failed")
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken swaps a Link public token for an access token and reads
// the first account's display metadata.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error) {
	exchangeReq := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	exchangeResp, _, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*exchangeReq).Execute()
	if err != nil {
		return nil, apperr.Upstream(c.classify(err, "public token exchange"), "public token exchange failed")
	}

	item := &LinkedItem{
		AccessToken: exchangeResp.GetAccessToken(),
		ItemID:      exchangeResp.GetItemId(),
	}

	accountsReq := plaid.NewAccountsGetRequest(item.AccessToken)
	accountsResp, _, err := c.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*accountsReq).Execute()
	if err != nil {
		// Metadata is display-only; the link itself succeeded.
		c.logger.Warn("Failed to fetch account metadata", "item_id", item.ItemID, "error", err)
		return item, nil
	}
	if accounts := accountsResp.GetAccounts(); len(accounts) > 0 {
		acc := accounts[0]
		balances := acc.GetBalances()
		item.AccountName = acc.GetName()
		item.Mask = acc.GetMask()
		item.CurrentBalance = decimal.NewFromFloat(balances.GetCurrent())
	}
	return item, nil
}

// FetchVerificationKey loads the JWK used to sign webhooks with the given kid.
func (c *Client) FetchVerificationKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	req := *plaid.NewWebhookVerificationKeyGetRequest(kid)
	resp, _, err := c.api.PlaidApi.WebhookVerificationKeyGet(ctx).
		WebhookVerificationKeyGetRequest(req).
		Execute()
	if err != nil {
		return nil, apperr.Upstream(c.classify(err, "webhook verification key get"), "webhook verification key fetch failed")
	}
	key := resp.GetKey()
	return &key, nil
}

// classify turns a Plaid SDK error into a retryable, mutation or plain error.
func (c *Client) classify(err error, op string) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	switch plaidErr.ErrorCode {
	case "RATE_LIMIT_EXCEEDED":
		c.logger.Warn("Rate limit hit, will retry", "op", op, "error", plaidErr.ErrorMessage)
		return &util.RetryableError{Err: fmt.Errorf("%s: %s", op, plaidErr.ErrorMessage)}
	case "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION":
		return ErrMutationDuringPagination
	default:
		return fmt.Errorf("plaid API error during %s: %s - %s", op, plaidErr.ErrorCode, plaidErr.ErrorMessage)
	}
}

var (
	_ TransactionSource           = (*Client)(nil)
	_ Linker                      = (*Client)(nil)
	_ util.VerificationKeyFetcher = (*Client)(nil)
)
