package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rekamed/internal/ledger"
	"rekamed/internal/sentinel"
)

// ledgerLockKey is the pg_advisory_xact_lock key that serializes appends.
const ledgerLockKey int64 = 0x72656b616d6564

const walkBatch = 500

// PostgresStore persists blocks in ledger_blocks.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to tx so an append commits or rolls back
// with the caller's other writes.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, build func(head *ledger.Block) (*ledger.Block, error)) (*ledger.Block, error) {
	if s.tx != nil {
		return appendWithTx(ctx, s.tx, build)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	b, err := appendWithTx(ctx, tx, build)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger append: %w", err)
	}
	return b, nil
}

func appendWithTx(ctx context.Context, tx *sql.Tx, build func(head *ledger.Block) (*ledger.Block, error)) (*ledger.Block, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}

	head, err := scanBlock(tx.QueryRowContext(ctx, selectBlocks+` ORDER BY block_id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		head = nil
	} else if err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}

	b, err := build(head)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_blocks (block_id, record_id, kind, data_hash, previous_hash, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.BlockID, b.RecordID, b.Kind, b.DataHash, b.PreviousHash, b.Payload, b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger block: %w", err)
	}
	return b, nil
}

const selectBlocks = `
	SELECT block_id, record_id, kind, data_hash, previous_hash, payload, created_at
	FROM ledger_blocks`

func (s *PostgresStore) Head(ctx context.Context) (*ledger.Block, error) {
	b, err := scanBlock(s.execer().QueryRowContext(ctx, selectBlocks+` ORDER BY block_id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Get(ctx context.Context, blockID int64) (*ledger.Block, error) {
	b, err := scanBlock(s.execer().QueryRowContext(ctx, selectBlocks+` WHERE block_id = $1`, blockID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger block: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Block, error) {
	filter = filter.Normalize()
	order := "ASC"
	if filter.Order == ledger.OrderDesc {
		order = "DESC"
	}
	rows, err := s.execer().QueryContext(ctx,
		selectBlocks+` ORDER BY block_id `+order+` LIMIT $1 OFFSET $2`,
		filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger blocks: %w", err)
	}
	return collect(rows)
}

// Walk pages with keyset pagination so verification of a long chain never
// holds one giant result set.
func (s *PostgresStore) Walk(ctx context.Context, from int64, fn func(*ledger.Block) error) error {
	next := from
	for {
		rows, err := s.execer().QueryContext(ctx,
			selectBlocks+` WHERE block_id >= $1 ORDER BY block_id ASC LIMIT $2`, next, walkBatch)
		if err != nil {
			return fmt.Errorf("walk ledger blocks: %w", err)
		}
		batch, err := collect(rows)
		if err != nil {
			return err
		}
		for _, b := range batch {
			if err := fn(b); err != nil {
				return err
			}
			next = b.BlockID + 1
		}
		if len(batch) < walkBatch {
			return nil
		}
	}
}

func collect(rows *sql.Rows) ([]*ledger.Block, error) {
	defer rows.Close()
	var out []*ledger.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger block: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger blocks: %w", err)
	}
	return out, nil
}

type blockRow interface {
	Scan(dest ...any) error
}

func scanBlock(row blockRow) (*ledger.Block, error) {
	var b ledger.Block
	if err := row.Scan(&b.BlockID, &b.RecordID, &b.Kind, &b.DataHash, &b.PreviousHash, &b.Payload, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
