package audit

import (
	"context"

	id "rekamed/pkg/domain"
)

// Projection is the queryable access log. Put is idempotent by block id so a
// block projected twice (after a retry or a rebuild) yields one entry.
type Projection interface {
	Put(ctx context.Context, entries []*AccessLogEntry) error
	ListByPatient(ctx context.Context, patientID id.UserID, filter LogFilter) ([]*AccessLogEntry, error)
	ListByActor(ctx context.Context, actorID id.UserID, filter LogFilter) ([]*AccessLogEntry, error)
	Reset(ctx context.Context) error
}

// NameResolver joins display names onto projected entries.
type NameResolver interface {
	Names(ctx context.Context, ids ...id.UserID) (map[id.UserID]string, error)
}
