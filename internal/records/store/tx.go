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

// Stores are the writers a record creation touches, bound to one transaction.
type Stores struct {
	Records Store
	Ledger  ledger.Store
}

type MemoryTx struct {
	runner  *txjournal.Runner
	records Store
	ledger  ledger.Store
}

func NewMemoryTx(runner *txjournal.Runner, records Store, ledger ledger.Store) *MemoryTx {
	return &MemoryTx{runner: runner, records: records, ledger: ledger}
}

func (t *MemoryTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st Stores) error) error {
	return t.runner.Run(ctx, key, func(ctx context.Context) error {
		return fn(ctx, Stores{Records: t.records, Ledger: t.ledger})
	})
}

type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTxRunner(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

// RunInTx holds the advisory lock on key, the doctor/patient pair, so the
// write serializes with consent transitions on that pair.
func (t *PostgresTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st Stores) error) error {
	return database.RunInTx(ctx, t.db, t.timeout, func(ctx context.Context, tx *sql.Tx) error {
		if err := database.LockKey(ctx, tx, key); err != nil {
			return err
		}
		return fn(ctx, Stores{
			Records: NewPostgresTx(tx),
			Ledger:  ledgerstore.NewPostgresTx(tx),
		})
	})
}
