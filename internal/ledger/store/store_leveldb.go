package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"rekamed/internal/ledger"
	"rekamed/internal/sentinel"
)

var (
	blockPrefix = []byte("block:")
	headKey     = []byte("head")
)

// LevelDBStore is an embedded ledger backend for single-node deployments.
// Blocks live under block:<big-endian id> so iteration order is block order.
type LevelDBStore struct {
	db *leveldb.DB
	mu sync.Mutex
}

// OpenLevelDB opens (or creates) a ledger database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger leveldb: %w", err)
	}
	return NewLevelDB(db), nil
}

func NewLevelDB(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func blockKey(id int64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], uint64(id))
	return k
}

func (s *LevelDBStore) Append(_ context.Context, build func(head *ledger.Block) (*ledger.Block, error)) (*ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.head()
	if err != nil {
		return nil, err
	}
	b, err := build(head)
	if err != nil {
		return nil, err
	}
	want := int64(0)
	if head != nil {
		want = head.BlockID + 1
	}
	if b.BlockID != want {
		return nil, sentinel.ErrConflict
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode ledger block: %w", err)
	}
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(b.BlockID))

	batch := new(leveldb.Batch)
	batch.Put(blockKey(b.BlockID), raw)
	batch.Put(headKey, idBuf)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("write ledger block: %w", err)
	}
	return b, nil
}

func (s *LevelDBStore) head() (*ledger.Block, error) {
	idBuf, err := s.db.Get(headKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}
	return s.get(int64(binary.BigEndian.Uint64(idBuf)))
}

func (s *LevelDBStore) get(id int64) (*ledger.Block, error) {
	raw, err := s.db.Get(blockKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger block %d: %w", id, err)
	}
	var b ledger.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode ledger block %d: %w", id, err)
	}
	return &b, nil
}

func (s *LevelDBStore) Head(_ context.Context) (*ledger.Block, error) {
	return s.head()
}

func (s *LevelDBStore) Get(_ context.Context, blockID int64) (*ledger.Block, error) {
	if blockID < 0 {
		return nil, sentinel.ErrNotFound
	}
	return s.get(blockID)
}

func (s *LevelDBStore) List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Block, error) {
	filter = filter.Normalize()
	iter := s.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	step, ok := iter.Next, iter.First()
	if filter.Order == ledger.OrderDesc {
		step, ok = iter.Prev, iter.Last()
	}
	var out []*ledger.Block
	for skipped := 0; ok && len(out) < filter.Limit; ok = step() {
		if skipped < filter.Offset {
			skipped++
			continue
		}
		var b ledger.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode ledger block: %w", err)
		}
		out = append(out, &b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}

func (s *LevelDBStore) Walk(ctx context.Context, from int64, fn func(*ledger.Block) error) error {
	if from < 0 {
		from = 0
	}
	iter := s.db.NewIterator(&util.Range{Start: blockKey(from), Limit: util.BytesPrefix(blockPrefix).Limit}, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var b ledger.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return fmt.Errorf("decode ledger block: %w", err)
		}
		if err := fn(&b); err != nil {
			return err
		}
	}
	return iter.Error()
}
