package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"rekamed/internal/records/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
	"rekamed/pkg/platform/txjournal"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Sealed
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*models.Sealed)}
}

func (s *InMemoryStore) Create(ctx context.Context, r *models.Sealed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *r
	s.records[r.ID] = &cp
	txjournal.Record(ctx, func() {
		s.mu.Lock()
		delete(s.records, r.ID)
		s.mu.Unlock()
	})
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.UserID) ([]*models.Sealed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Sealed, 0)
	for _, r := range s.records {
		if r.PatientID == patientID {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Sealed) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out, nil
}
