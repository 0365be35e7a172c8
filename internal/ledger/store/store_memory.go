package store

import (
	"context"
	"sync"

	"rekamed/internal/ledger"
	"rekamed/internal/sentinel"
)

// InMemoryStore keeps the chain in a slice. Append holds the write lock for
// the whole head-read, build and insert.
type InMemoryStore struct {
	mu     sync.RWMutex
	blocks []*ledger.Block
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, build func(head *ledger.Block) (*ledger.Block, error)) (*ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var head *ledger.Block
	if n := len(s.blocks); n > 0 {
		head = clone(s.blocks[n-1])
	}
	b, err := build(head)
	if err != nil {
		return nil, err
	}
	if b.BlockID != int64(len(s.blocks)) {
		return nil, sentinel.ErrConflict
	}
	s.blocks = append(s.blocks, clone(b))
	return clone(b), nil
}

func (s *InMemoryStore) Head(_ context.Context) (*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil, nil
	}
	return clone(s.blocks[len(s.blocks)-1]), nil
}

func (s *InMemoryStore) Get(_ context.Context, blockID int64) (*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if blockID < 0 || blockID >= int64(len(s.blocks)) {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.blocks[blockID]), nil
}

func (s *InMemoryStore) List(_ context.Context, filter ledger.ListFilter) ([]*ledger.Block, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.blocks)
	out := make([]*ledger.Block, 0, min(filter.Limit, n))
	for i := filter.Offset; i < n && len(out) < filter.Limit; i++ {
		idx := i
		if filter.Order == ledger.OrderDesc {
			idx = n - 1 - i
		}
		out = append(out, clone(s.blocks[idx]))
	}
	return out, nil
}

func (s *InMemoryStore) Walk(ctx context.Context, from int64, fn func(*ledger.Block) error) error {
	s.mu.RLock()
	snapshot := s.blocks
	s.mu.RUnlock()

	for _, b := range snapshot {
		if b.BlockID < from {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(clone(b)); err != nil {
			return err
		}
	}
	return nil
}

func clone(b *ledger.Block) *ledger.Block {
	c := *b
	c.Payload = append([]byte(nil), b.Payload...)
	return &c
}
