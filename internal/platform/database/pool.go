package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rekamed/internal/platform/config"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

var errNotConfigured = errors.New("database not configured")

// Pool is the process-wide *sql.DB, opened through the pgx stdlib driver.
type Pool struct {
	db        *sql.DB
	txTimeout time.Duration
}

// New opens the database and waits for it to answer, retrying while it
// starts up. It returns nil, nil when DATABASE_URL is unset. Connection pool
// statistics are exported on reg when it is non-nil.
func New(ctx context.Context, cfg config.Database, reg prometheus.Registerer) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if reg != nil {
		if err := reg.Register(collectors.NewDBStatsCollector(db, "rekamed")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("register db stats: %w", err)
		}
	}
	timeout := cfg.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &Pool{db: db, txTimeout: timeout}, nil
}

func waitForDB(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, err)
}

func (p *Pool) DB() *sql.DB { return p.db }

// TxTimeout bounds every transaction run against this pool.
func (p *Pool) TxTimeout() time.Duration { return p.txTimeout }

func (p *Pool) Health(ctx context.Context) error {
	if p == nil {
		return errNotConfigured
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}
