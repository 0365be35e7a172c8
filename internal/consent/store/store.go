package store

import (
	"context"

	"rekamed/internal/consent/models"
	id "rekamed/pkg/domain"
)

// Store persists consent requests. Implementations return sentinel errors:
// ErrNotFound for unknown ids, ErrConflict when a pending request already
// exists for the pair, ErrStateChanged when UpdateStatus loses a race.
type Store interface {
	Create(ctx context.Context, r *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	// ListForPair returns every request between doctor and patient, newest first.
	ListForPair(ctx context.Context, doctorID, patientID id.UserID) ([]*models.Request, error)
	ListByPatient(ctx context.Context, patientID id.UserID, filter models.ListFilter) ([]*models.Request, error)
	ListByDoctor(ctx context.Context, doctorID id.UserID, filter models.ListFilter) ([]*models.Request, error)
	// LatestForPairs returns the newest request from doctor to each patient that has one.
	LatestForPairs(ctx context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]*models.Request, error)
	// UpdateStatus writes r's status, duration, expiry and updated_at only if
	// the stored status is still expected.
	UpdateStatus(ctx context.Context, r *models.Request, expected models.Status) error
}
