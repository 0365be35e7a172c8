package txjournal

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// ShardedMutex spreads keys over a fixed set of mutexes so unrelated keys
// rarely contend. The empty key always maps to shard 0.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

func (m *ShardedMutex) Lock(key string)   { m.shards[shardFor(key)].Lock() }
func (m *ShardedMutex) Unlock(key string) { m.shards[shardFor(key)].Unlock() }

func shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
