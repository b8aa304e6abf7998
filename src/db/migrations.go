package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one versioned schema change.
type Migration struct {
	Description string
	Statements  []string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				institution TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id)`,
			`CREATE TABLE IF NOT EXISTS account_approvers (
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (account_id, user_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_account_approvers_user ON account_approvers(user_id)`,
			`CREATE TABLE IF NOT EXISTS bank_accounts (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
				item_id TEXT NOT NULL UNIQUE,
				access_token TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				institution TEXT NOT NULL DEFAULT '',
				mask TEXT NOT NULL DEFAULT '',
				current_balance NUMERIC NOT NULL DEFAULT 0,
				sync_cursor TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS rules (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				description TEXT NOT NULL,
				threshold NUMERIC NOT NULL CHECK (threshold >= 0),
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rules_account ON rules(account_id, created_at DESC)`,
			// Backstop for the single-active-rule invariant; writers also serialize on the account row.
			`CREATE UNIQUE INDEX IF NOT EXISTS uniq_rules_one_active ON rules(account_id) WHERE is_active`,
			`CREATE TABLE IF NOT EXISTS alert_transactions (
				id TEXT PRIMARY KEY,
				bank_account_id TEXT NOT NULL REFERENCES bank_accounts(id) ON DELETE CASCADE,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				upstream_transaction_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				amount NUMERIC NOT NULL,
				transaction_type TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				violated_rule_id TEXT REFERENCES rules(id) ON DELETE SET NULL,
				rule_name TEXT NOT NULL DEFAULT '',
				rule_threshold NUMERIC NOT NULL,
				approved_by BIGINT[] NOT NULL DEFAULT '{}',
				rejected_by BIGINT[] NOT NULL DEFAULT '{}',
				is_approved BOOLEAN NOT NULL DEFAULT FALSE,
				is_rejected BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT alert_not_both CHECK (NOT (is_approved AND is_rejected)),
				CONSTRAINT uniq_alert_upstream UNIQUE (bank_account_id, upstream_transaction_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_account_created ON alert_transactions(account_id, created_at DESC)`,
		},
	},
}

// ExpectedSchemaVersion is the version Migrate brings the database to.
func ExpectedSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("failed to execute statement: %w", err)
				}
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}
	return nil
}
