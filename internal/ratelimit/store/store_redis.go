package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rekamed/internal/ratelimit/models"
)

// slidingWindowScript trims the window, then admits the hit if there is room.
// Scores are unix milliseconds. It returns {allowed, count, oldest}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
return {allowed, count, first}
`)

// RedisStore shares windows across server instances. Each window is a sorted
// set of hits under prefix+key.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

func NewRedis(client redis.Scripter, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error) {
	out, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(), limit.Window.Milliseconds(), limit.Requests, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values", len(out))
	}

	res := &models.Result{
		Allowed: out[0] == 1,
		Limit:   limit.Requests,
		ResetAt: time.UnixMilli(out[2]).Add(limit.Window),
	}
	if res.Allowed {
		res.Remaining = limit.Requests - int(out[1])
	}
	return res, nil
}
