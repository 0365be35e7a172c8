//go:build integration

// Package containers starts shared testcontainers fixtures for integration
// tests. Each container is started once per test binary and reused; Ryuk
// reaps them when the binary exits.
package containers

import (
	"context"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

type shared[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (s *shared[T]) get(t testing.TB, what string, start func(context.Context) (T, error)) T {
	t.Helper()
	s.once.Do(func() { s.val, s.err = start(context.Background()) })
	if s.err != nil {
		t.Fatalf("start %s container: %v", what, s.err)
	}
	return s.val
}

type Manager struct {
	postgres shared[*PostgresContainer]
	redis    shared[*RedisContainer]
	kafka    shared[*KafkaContainer]
}

var GetManager = sync.OnceValue(func() *Manager { return &Manager{} })

func (m *Manager) GetPostgres(t testing.TB) *PostgresContainer {
	return m.postgres.get(t, "postgres", startPostgres)
}

func (m *Manager) GetRedis(t testing.TB) *RedisContainer {
	return m.redis.get(t, "redis", startRedis)
}

func (m *Manager) GetKafka(t testing.TB) *KafkaContainer {
	return m.kafka.get(t, "kafka", startKafka)
}

// abandon terminates c after a failed setup step and returns err.
func abandon(ctx context.Context, c testcontainers.Container, err error) error {
	_ = c.Terminate(ctx)
	return err
}
