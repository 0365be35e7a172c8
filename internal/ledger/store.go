package ledger

import "context"

// Reader is the read side of a ledger store.
type Reader interface {
	// Head returns the newest block, or nil when the ledger is empty.
	Head(ctx context.Context) (*Block, error)
	Get(ctx context.Context, blockID int64) (*Block, error)
	List(ctx context.Context, filter ListFilter) ([]*Block, error)
	// Walk visits blocks with block_id >= from in ascending order until fn
	// returns an error. Returning ErrStopWalk ends the walk without error.
	Walk(ctx context.Context, from int64, fn func(*Block) error) error
}

// Store adds the single mutator.
type Store interface {
	Reader
	// Append calls build with the current head (nil when empty) while holding
	// the store's single-writer lock, then persists the returned block. No
	// other Append can observe the same head.
	Append(ctx context.Context, build func(head *Block) (*Block, error)) (*Block, error)
}
