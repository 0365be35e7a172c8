package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rekamed/internal/identity/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, role, public_key, nip, phone, specialization, created_at`

func (s *PostgresStore) Save(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, public_key, nip, phone, specialization, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			public_key = EXCLUDED.public_key,
			nip = EXCLUDED.nip,
			phone = EXCLUDED.phone,
			specialization = EXCLUDED.specialization
	`, uuid.UUID(user.ID), user.Name, strings.ToLower(user.Email), string(user.Role), user.PublicKey,
		user.NIP, user.Phone, user.Specialization, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]*models.User, error) {
	out := make(map[id.UserID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, uid := range ids {
		raw = append(raw, uid.String())
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, raw)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *PostgresStore) Search(ctx context.Context, filter models.SearchFilter) ([]*models.User, error) {
	pattern := "%" + strings.TrimSpace(filter.Query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR role = $1) AND (name ILIKE $2 OR email ILIKE $2)
		ORDER BY name
		LIMIT $3
	`, string(filter.Role), pattern, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u    models.User
		uid  uuid.UUID
		role string
	)
	if err := row.Scan(&uid, &u.Name, &u.Email, &role, &u.PublicKey, &u.NIP, &u.Phone, &u.Specialization, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(uid)
	u.Role = id.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
