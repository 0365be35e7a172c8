package store

import (
	"context"

	"rekamed/internal/records/models"
	id "rekamed/pkg/domain"
)

// Store persists sealed records. Create returns sentinel.ErrConflict for a
// duplicate id.
type Store interface {
	Create(ctx context.Context, r *models.Sealed) error
	// ListByPatient returns a patient's records, newest first.
	ListByPatient(ctx context.Context, patientID id.UserID) ([]*models.Sealed, error)
}
