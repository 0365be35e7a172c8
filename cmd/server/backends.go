package main

import (
	"context"
	"fmt"
	"log/slog"

	"rekamed/internal/audit"
	auditstore "rekamed/internal/audit/store"
	consentservice "rekamed/internal/consent/service"
	consentstore "rekamed/internal/consent/store"
	identitystore "rekamed/internal/identity/store"
	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/internal/platform/config"
	"rekamed/internal/platform/database"
	"rekamed/internal/platform/kafka/producer"
	"rekamed/internal/platform/metrics"
	"rekamed/internal/platform/redis"
	recordsservice "rekamed/internal/records/service"
	recordsstore "rekamed/internal/records/store"
	"rekamed/pkg/platform/txjournal"
)

// messageProducer is what the tailer and the alerter publish through.
type messageProducer interface {
	Produce(ctx context.Context, msgs ...*producer.Message) error
	EnsureTopics(ctx context.Context, replication int16, topics ...string) error
	Close() error
	Healthy(ctx context.Context) bool
}

// backends are the stores and connections picked by configuration.
// Memory and LevelDB ledgers pair with memory stores, whose transactions are
// journalled; the postgres ledger shares real transactions with the
// postgres stores.
type backends struct {
	pool     *database.Pool
	redis    *redis.Client
	leveldb  *ledgerstore.LevelDBStore
	producer messageProducer

	users      identitystore.Store
	ledger     ledger.Store
	projection audit.Projection
	consents   consentstore.Store
	consentTx  consentservice.TxRunner
	records    recordsstore.Store
	recordsTx  recordsservice.TxRunner
}

func openBackends(ctx context.Context, cfg *config.Config, reg *metrics.Registry, log *slog.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close(log)
		}
	}()

	pool, err := database.New(ctx, cfg.Database, reg.Registerer())
	if err != nil {
		return nil, err
	}
	b.pool = pool
	if pool != nil {
		n, err := database.Migrate(ctx, pool.DB())
		if err != nil {
			return nil, err
		}
		log.Info("database migrated", "files", n)
	}

	rc, err := redis.New(ctx, cfg.Redis, redis.NewPoolMetrics(reg.Registerer()))
	if err != nil {
		return nil, err
	}
	b.redis = rc

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: "rekamed-server",
			Acks:     cfg.Kafka.Acks,
			Retries:  cfg.Kafka.Retries,
		}, log)
		if err != nil {
			return nil, err
		}
		b.producer = p
	} else {
		b.producer = producer.NewNoopProducer()
	}

	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		db := pool.DB()
		b.users = identitystore.NewPostgres(db)
		b.ledger = ledgerstore.NewPostgres(db)
		b.consents = consentstore.NewPostgres(db)
		b.consentTx = consentstore.NewPostgresTxRunner(db, pool.TxTimeout())
		b.records = recordsstore.NewPostgres(db)
		b.recordsTx = recordsstore.NewPostgresTxRunner(db, pool.TxTimeout())
	case config.LedgerMemory, config.LedgerLevelDB:
		if cfg.Ledger.Backend == config.LedgerLevelDB {
			ldb, err := ledgerstore.OpenLevelDB(cfg.Ledger.LevelDBPath)
			if err != nil {
				return nil, err
			}
			b.leveldb = ldb
			b.ledger = ldb
		} else {
			b.ledger = ledgerstore.NewInMemory()
		}
		runner := txjournal.NewRunner(cfg.Database.TxTimeout)
		consents := consentstore.NewInMemory()
		records := recordsstore.NewInMemory()
		b.users = identitystore.NewInMemory()
		b.consents = consents
		b.consentTx = consentstore.NewMemoryTx(runner, consents, b.ledger)
		b.records = records
		b.recordsTx = recordsstore.NewMemoryTx(runner, records, b.ledger)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	switch cfg.Ledger.Projection {
	case config.ProjectionRedis:
		b.projection = auditstore.NewRedis(rc.Client, auditstore.DefaultRedisPrefix)
	case config.ProjectionPostgres:
		b.projection = auditstore.NewPostgres(pool.DB())
	default:
		b.projection = auditstore.NewInMemory()
	}

	ok = true
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *backends) Close(log *slog.Logger) {
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			log.Warn("failed to close kafka producer", "error", err)
		}
	}
	if b.leveldb != nil {
		if err := b.leveldb.Close(); err != nil {
			log.Warn("failed to close leveldb ledger", "error", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if b.pool != nil {
		if err := b.pool.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
}
