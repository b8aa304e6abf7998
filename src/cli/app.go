package cli

import (
	"context"
	"fmt"
	"log/slog"

	"dualauth-server/src/api"
	"dualauth-server/src/config"
	schema "dualauth-server/src/db"
	"dualauth-server/src/db/memory"
	sqlstore "dualauth-server/src/db/sql"
	"dualauth-server/src/plaid"
	"dualauth-server/src/service"
	"dualauth-server/src/util"
)

// app is the wired service graph shared by serve and sync.
type app struct {
	cfg      config.Config
	services api.Services
	sessions *schema.SessionCache
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	items, err := schema.NewItemCache(cfg.ItemCacheTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, items.Close)

	a.sessions, err = schema.NewSessionCache(cfg.SessionCacheTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.sessions.Close)

	client, err := plaid.NewClient(cfg.Plaid)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create plaid client: %w", err)
	}
	cipher, err := util.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		a.Close()
		return nil, err
	}

	rules := service.NewRuleService(store)
	a.services = api.Services{
		Accounts: service.NewAccountService(store, client, cipher),
		Rules:    rules,
		Alerts:   service.NewAlertService(store),
		Sync:     service.NewSyncService(store, client, cipher, service.NewIngestor(store, rules), items),
	}
	if cfg.VerifyWebhooks {
		a.services.Verifier = util.NewWebhookVerifier(client)
	} else {
		slog.Warn("Plaid webhook verification is disabled")
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (service.Store, error) {
	switch a.cfg.StoreDriver {
	case config.DriverMemory:
		slog.Warn("Using the in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		pool, err := schema.Connect(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("DB connection failed: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := schema.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return sqlstore.NewStore(pool), nil
	}
}
