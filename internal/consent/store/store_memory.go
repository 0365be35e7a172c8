package store

import (
	"context"
	"slices"
	"sync"

	"rekamed/internal/consent/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
	"rekamed/pkg/platform/txjournal"
)

// InMemoryStore keeps requests in a map. Writes made inside a txjournal
// transaction are undone if the transaction fails.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemoryStore) Create(ctx context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.requests {
		if existing.DoctorID == r.DoctorID && existing.PatientID == r.PatientID && existing.Status == models.StatusPending {
			return sentinel.ErrConflict
		}
	}
	s.requests[r.ID] = clone(r)
	txjournal.Record(ctx, func() {
		s.mu.Lock()
		delete(s.requests, r.ID)
		s.mu.Unlock()
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemoryStore) ListForPair(_ context.Context, doctorID, patientID id.UserID) ([]*models.Request, error) {
	return s.collect(func(r *models.Request) bool {
		return r.DoctorID == doctorID && r.PatientID == patientID
	}), nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.UserID, filter models.ListFilter) ([]*models.Request, error) {
	return s.collect(func(r *models.Request) bool {
		return r.PatientID == patientID && (filter.Status == "" || r.Status == filter.Status)
	}), nil
}

func (s *InMemoryStore) ListByDoctor(_ context.Context, doctorID id.UserID, filter models.ListFilter) ([]*models.Request, error) {
	return s.collect(func(r *models.Request) bool {
		return r.DoctorID == doctorID && (filter.Status == "" || r.Status == filter.Status)
	}), nil
}

func (s *InMemoryStore) LatestForPairs(_ context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]*models.Request, error) {
	wanted := make(map[id.UserID]struct{}, len(patientIDs))
	for _, pid := range patientIDs {
		wanted[pid] = struct{}{}
	}
	out := make(map[id.UserID]*models.Request)
	for _, r := range s.collect(func(r *models.Request) bool {
		_, ok := wanted[r.PatientID]
		return r.DoctorID == doctorID && ok
	}) {
		if _, seen := out[r.PatientID]; !seen {
			out[r.PatientID] = r
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, r *models.Request, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrStateChanged
	}
	prev := clone(current)
	next := clone(current)
	next.Status = r.Status
	next.Duration = r.Duration
	next.ExpiresAt = r.ExpiresAt
	next.UpdatedAt = r.UpdatedAt
	s.requests[r.ID] = next
	txjournal.Record(ctx, func() {
		s.mu.Lock()
		s.requests[prev.ID] = prev
		s.mu.Unlock()
	})
	return nil
}

// collect returns matching requests newest first.
func (s *InMemoryStore) collect(match func(*models.Request) bool) []*models.Request {
	s.mu.RLock()
	out := make([]*models.Request, 0)
	for _, r := range s.requests {
		if match(r) {
			out = append(out, clone(r))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *models.Request) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(b.ID, a.ID)
	})
	return out
}

func compareIDs(a, b id.RequestID) int {
	switch as, bs := a.String(), b.String(); {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func clone(r *models.Request) *models.Request {
	cp := *r
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}
