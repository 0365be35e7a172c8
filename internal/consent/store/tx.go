package store

import (
	"context"
	"database/sql"
	"time"

	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/internal/platform/database"
	"rekamed/pkg/platform/txjournal"
)

// Stores are the writers a consent transition may touch, bound to one
// transaction.
type Stores struct {
	Consents Store
	Ledger   ledger.Store
}

// MemoryTx runs transitions under a per-pair shard lock and undoes journaled
// consent writes when the transition fails.
type MemoryTx struct {
	runner   *txjournal.Runner
	consents Store
	ledger   ledger.Store
}

func NewMemoryTx(runner *txjournal.Runner, consents Store, ledger ledger.Store) *MemoryTx {
	return &MemoryTx{runner: runner, consents: consents, ledger: ledger}
}

func (t *MemoryTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st Stores) error) error {
	return t.runner.Run(ctx, key, func(ctx context.Context) error {
		return fn(ctx, Stores{Consents: t.consents, Ledger: t.ledger})
	})
}

// PostgresTx runs transitions in one database transaction holding an
// advisory lock on the pair key. The ledger append shares the transaction.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTxRunner(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st Stores) error) error {
	return database.RunInTx(ctx, t.db, t.timeout, func(ctx context.Context, tx *sql.Tx) error {
		if err := database.LockKey(ctx, tx, key); err != nil {
			return err
		}
		return fn(ctx, Stores{
			Consents: NewPostgresTx(tx),
			Ledger:   ledgerstore.NewPostgresTx(tx),
		})
	})
}
