//go:build integration

package containers

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisContainer struct {
	Container testcontainers.Container
	Client    *redis.Client
}

func startRedis(ctx context.Context) (*RedisContainer, error) {
	c, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, err
	}
	uri, err := c.ConnectionString(ctx)
	if err != nil {
		return nil, abandon(ctx, c, err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, abandon(ctx, c, err)
	}
	return &RedisContainer{Container: c, Client: redis.NewClient(opts)}, nil
}

func (r *RedisContainer) Flush(ctx context.Context) error {
	return r.Client.FlushDB(ctx).Err()
}
