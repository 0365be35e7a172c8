package store

import (
	"context"

	"rekamed/internal/identity/models"
	id "rekamed/pkg/domain"
)

// Store persists users. Lookups of unknown ids return sentinel.ErrNotFound.
type Store interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]*models.User, error)
	Search(ctx context.Context, filter models.SearchFilter) ([]*models.User, error)
}
