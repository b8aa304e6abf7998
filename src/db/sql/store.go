// Package db is the PostgreSQL implementation of the service repositories.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// lockAccount takes a row lock on the account for the rest of tx. Rule and
// roster writers use NO KEY UPDATE; voters take SHARE so the roster they
// count against cannot change underneath them.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID string, mode string) (ownerID int64, err error) {
	err = tx.QueryRow(ctx, `SELECT user_id FROM accounts WHERE id = $1 FOR `+mode, accountID).Scan(&ownerID)
	if err != nil {
		return 0, mapError(err, "account "+accountID)
	}
	return ownerID, nil
}
