//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rekamed/internal/identity/models"
	identitystore "rekamed/internal/identity/store"
	"rekamed/internal/platform/database"
)

// moduleTables lists every application table, children first.
var moduleTables = []string{"access_log", "ledger_blocks", "medical_records", "consent_requests", "users"}

// PostgresContainer is a migrated PostgreSQL instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	c, err := postgres.Run(ctx, "postgres:18-alpine",
		postgres.WithDatabase("rekamed_test"),
		postgres.WithUsername("rekamed"),
		postgres.WithPassword("rekamed"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, err
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, abandon(ctx, c, err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, abandon(ctx, c, err)
	}
	if _, err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, abandon(ctx, c, fmt.Errorf("migrate: %w", err))
	}
	return &PostgresContainer{Container: c, DB: db}, nil
}

// TruncateTables empties tables in one statement; no tables means all of them.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		tables = moduleTables
	}
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	return err
}

func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}

// SaveUsers writes users through the identity store so consent and record
// rows can reference them.
func (p *PostgresContainer) SaveUsers(ctx context.Context, t testing.TB, users ...*models.User) {
	t.Helper()
	st := identitystore.NewPostgres(p.DB)
	for _, u := range users {
		if err := st.Save(ctx, u); err != nil {
			t.Fatalf("save user %s: %v", u.Name, err)
		}
	}
}
