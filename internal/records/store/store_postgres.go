package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rekamed/internal/records/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
)

// PostgresStore persists sealed records in medical_records.
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
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Sealed) error {
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO medical_records (id, patient_id, doctor_id, diagnosis, notes, attachment_cid, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(r.ID),
		uuid.UUID(r.PatientID),
		uuid.UUID(r.DoctorID),
		r.Diagnosis,
		r.Notes,
		r.AttachmentCID,
		r.ContentHash,
		r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.UserID) ([]*models.Sealed, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT id, patient_id, doctor_id, diagnosis, notes, attachment_cid, content_hash, created_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY created_at DESC, id
	`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Sealed, 0)
	for rows.Next() {
		var (
			r                           models.Sealed
			recordID, patient, doctorID uuid.UUID
		)
		if err := rows.Scan(&recordID, &patient, &doctorID, &r.Diagnosis, &r.Notes, &r.AttachmentCID, &r.ContentHash, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan medical record: %w", err)
		}
		r.ID = id.RecordID(recordID)
		r.PatientID = id.UserID(patient)
		r.DoctorID = id.UserID(doctorID)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medical records: %w", err)
	}
	return out, nil
}
