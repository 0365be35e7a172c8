package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rekamed/internal/consent/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
)

const uniqueViolation = "23505"

// PostgresStore persists requests in consent_requests. A store bound to a
// transaction reads rows FOR UPDATE so a transition holds them until commit.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) lockClause() string {
	if s.tx != nil {
		return ` FOR UPDATE`
	}
	return ""
}

const requestColumns = `id, doctor_id, patient_id, status, duration, data_scope, created_at, updated_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO consent_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(r.ID),
		uuid.UUID(r.DoctorID),
		uuid.UUID(r.PatientID),
		string(r.Status),
		r.Duration,
		r.DataScope,
		r.CreatedAt,
		r.UpdatedAt,
		r.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM consent_requests WHERE id = $1`+s.lockClause(),
		uuid.UUID(requestID))
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find consent request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListForPair(ctx context.Context, doctorID, patientID id.UserID) ([]*models.Request, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+requestColumns+` FROM consent_requests
		WHERE doctor_id = $1 AND patient_id = $2
		ORDER BY created_at DESC, id DESC`+s.lockClause(),
		uuid.UUID(doctorID), uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("list consent requests for pair: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.UserID, filter models.ListFilter) ([]*models.Request, error) {
	return s.listBy(ctx, "patient_id", patientID, filter)
}

func (s *PostgresStore) ListByDoctor(ctx context.Context, doctorID id.UserID, filter models.ListFilter) ([]*models.Request, error) {
	return s.listBy(ctx, "doctor_id", doctorID, filter)
}

// column is a constant chosen by the caller above.
func (s *PostgresStore) listBy(ctx context.Context, column string, userID id.UserID, filter models.ListFilter) ([]*models.Request, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+requestColumns+` FROM consent_requests
		WHERE `+column+` = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC`,
		uuid.UUID(userID), string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list consent requests: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) LatestForPairs(ctx context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]*models.Request, error) {
	out := make(map[id.UserID]*models.Request, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}
	raw := make([]string, len(patientIDs))
	for i, pid := range patientIDs {
		raw[i] = pid.String()
	}
	rows, err := s.execer().QueryContext(ctx, `
		SELECT DISTINCT ON (patient_id) `+requestColumns+` FROM consent_requests
		WHERE doctor_id = $1 AND patient_id = ANY($2::uuid[])
		ORDER BY patient_id, created_at DESC, id DESC`,
		uuid.UUID(doctorID), raw)
	if err != nil {
		return nil, fmt.Errorf("latest consent requests: %w", err)
	}
	reqs, err := collect(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		out[r.PatientID] = r
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, r *models.Request, expected models.Status) error {
	res, err := s.execer().ExecContext(ctx, `
		UPDATE consent_requests
		SET status = $2, duration = $3, expires_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`,
		uuid.UUID(r.ID),
		string(r.Status),
		r.Duration,
		r.ExpiresAt,
		r.UpdatedAt,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent status rows: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, r.ID); err != nil {
			return err
		}
		return sentinel.ErrStateChanged
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		r                          models.Request
		reqID, doctorID, patientID uuid.UUID
		status                     string
		expiresAt                  sql.NullTime
		createdAt, updatedAt       time.Time
	)
	if err := row.Scan(&reqID, &doctorID, &patientID, &status, &r.Duration, &r.DataScope, &createdAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}
	r.ID = id.RequestID(reqID)
	r.DoctorID = id.UserID(doctorID)
	r.PatientID = id.UserID(patientID)
	r.Status = models.Status(status)
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	if expiresAt.Valid {
		exp := expiresAt.Time.UTC()
		r.ExpiresAt = &exp
	}
	return &r, nil
}

func collect(rows *sql.Rows) ([]*models.Request, error) {
	defer rows.Close()
	out := make([]*models.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent requests: %w", err)
	}
	return out, nil
}
