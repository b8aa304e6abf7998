package plaid

import (
	"context"
	"sync"

	"github.com/plaid/plaid-go/v41/plaid"

	"dualauth-server/src/util"
)

// MockClient is a configurable stand-in for Client. Unset functions return
// zero values.
type MockClient struct {
	SyncTransactionsFn     func(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
	CreateLinkTokenFn      func(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicTokenFn  func(ctx context.Context, publicToken string) (*LinkedItem, error)
	FetchVerificationKeyFn func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)

	mu          sync.Mutex
	syncCursors []string
}

func (m *MockClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	m.mu.Lock()
	m.syncCursors = append(m.syncCursors, cursor)
	m.mu.Unlock()
	if m.SyncTransactionsFn != nil {
		return m.SyncTransactionsFn(ctx, accessToken, cursor)
	}
	return &SyncPage{NextCursor: cursor}, nil
}

// SyncCursors returns the cursor passed to each SyncTransactions call, in order.
func (m *MockClient) SyncCursors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.syncCursors...)
}

func (m *MockClient) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	if m.CreateLinkTokenFn != nil {
		return m.CreateLinkTokenFn(ctx, clientUserID)
	}
	return "link-sandbox-mock", nil
}

func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error) {
	if m.ExchangePublicTokenFn != nil {
		return m.ExchangePublicTokenFn(ctx, publicToken)
	}
	return &LinkedItem{AccessToken: "access-sandbox-mock", ItemID: "item-mock"}, nil
}

func (m *MockClient) FetchVerificationKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	if m.FetchVerificationKeyFn != nil {
		return m.FetchVerificationKeyFn(ctx, kid)
	}
	return nil, nil
}

var (
	_ TransactionSource           = (*MockClient)(nil)
	_ Linker                      = (*MockClient)(nil)
	_ util.VerificationKeyFetcher = (*MockClient)(nil)
)
