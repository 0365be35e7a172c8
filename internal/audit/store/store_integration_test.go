//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"rekamed/internal/audit"
	"rekamed/internal/audit/store"
	"rekamed/pkg/testutil/containers"
)

type PostgresProjectionSuite struct {
	contractSuite
}

func TestPostgresProjectionSuite(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	s := new(PostgresProjectionSuite)
	s.newStore = func() audit.Projection {
		s.Require().NoError(pg.TruncateTables(context.Background(), "access_log"))
		return store.NewPostgres(pg.DB)
	}
	suite.Run(t, s)
}

type RedisProjectionSuite struct {
	contractSuite
}

func TestRedisProjectionSuite(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	s := new(RedisProjectionSuite)
	s.newStore = func() audit.Projection {
		s.Require().NoError(rc.Flush(context.Background()))
		return store.NewRedis(rc.Client, store.DefaultRedisPrefix)
	}
	suite.Run(t, s)
}
