package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"rekamed/internal/audit"
	id "rekamed/pkg/domain"
)

// PostgresStore persists the access log in the access_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const upsertEntry = `
	INSERT INTO access_log (
		block_id, kind, patient_id, patient_name, doctor_id, doctor_name,
		actor_id, actor_role, action, record_diagnosis, status, reason, device, timestamp
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (block_id) DO UPDATE SET
		patient_name = EXCLUDED.patient_name,
		doctor_name = EXCLUDED.doctor_name
`

func (s *PostgresStore) Put(ctx context.Context, entries []*audit.AccessLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access log tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, upsertEntry)
	if err != nil {
		return fmt.Errorf("prepare access log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.BlockID,
			string(e.Kind),
			uuid.UUID(e.PatientID),
			e.PatientName,
			uuid.UUID(e.DoctorID),
			e.DoctorName,
			uuid.UUID(e.ActorID),
			string(e.ActorRole),
			e.Action,
			e.RecordDiagnosis,
			e.Status,
			e.Reason,
			e.Device,
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert access log entry %d: %w", e.BlockID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access log entries: %w", err)
	}
	return nil
}

const selectEntries = `
	SELECT block_id, kind, patient_id, patient_name, doctor_id, doctor_name,
		actor_id, actor_role, action, record_diagnosis, status, reason, device, timestamp
	FROM access_log
`

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(ctx, "patient_id", patientID, filter)
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(ctx, "actor_id", actorID, filter)
}

// column is one of two constants above, never caller input.
func (s *PostgresStore) list(ctx context.Context, column string, userID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	filter = filter.Normalize()
	query := selectEntries + ` WHERE ` + column + ` = $1 ORDER BY block_id DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	out := make([]*audit.AccessLogEntry, 0)
	for rows.Next() {
		var (
			e                   audit.AccessLogEntry
			kind, role          string
			patientID, doctorID uuid.UUID
			actorID             uuid.UUID
		)
		if err := rows.Scan(
			&e.BlockID, &kind, &patientID, &e.PatientName, &doctorID, &e.DoctorName,
			&actorID, &role, &e.Action, &e.RecordDiagnosis, &e.Status, &e.Reason, &e.Device, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan access log entry: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.ActorRole = id.Role(role)
		e.PatientID = id.UserID(patientID)
		e.DoctorID = id.UserID(doctorID)
		e.ActorID = id.UserID(actorID)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE access_log`); err != nil {
		return fmt.Errorf("truncate access log: %w", err)
	}
	return nil
}
