package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Cursor remembers the next block_id the tailer has to publish.
type Cursor interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, next int64) error
}

// MemoryCursor restarts from its initial value on every process start.
type MemoryCursor struct {
	next atomic.Int64
}

func NewMemoryCursor(start int64) *MemoryCursor {
	c := &MemoryCursor{}
	c.next.Store(start)
	return c
}

func (c *MemoryCursor) Load(context.Context) (int64, error) {
	return c.next.Load(), nil
}

func (c *MemoryCursor) Save(_ context.Context, next int64) error {
	c.next.Store(next)
	return nil
}

// RedisCursor persists the position under a single key so restarts resume.
type RedisCursor struct {
	client redis.Cmdable
	key    string
}

func NewRedisCursor(client redis.Cmdable, key string) *RedisCursor {
	return &RedisCursor{client: client, key: key}
}

func (c *RedisCursor) Load(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load tailer cursor: %w", err)
	}
	return n, nil
}

func (c *RedisCursor) Save(ctx context.Context, next int64) error {
	if err := c.client.Set(ctx, c.key, next, 0).Err(); err != nil {
		return fmt.Errorf("save tailer cursor: %w", err)
	}
	return nil
}
