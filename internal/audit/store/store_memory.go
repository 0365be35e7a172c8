package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"rekamed/internal/audit"
	id "rekamed/pkg/domain"
)

// InMemoryStore keeps the access log in a map keyed by block id.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]*audit.AccessLogEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[int64]*audit.AccessLogEntry)}
}

func (s *InMemoryStore) Put(_ context.Context, entries []*audit.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		cp := *e
		s.entries[e.BlockID] = &cp
	}
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(filter, func(e *audit.AccessLogEntry) bool { return e.PatientID == patientID }), nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(filter, func(e *audit.AccessLogEntry) bool { return e.ActorID == actorID }), nil
}

func (s *InMemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[int64]*audit.AccessLogEntry)
	return nil
}

func (s *InMemoryStore) list(filter audit.LogFilter, match func(*audit.AccessLogEntry) bool) []*audit.AccessLogEntry {
	filter = filter.Normalize()
	s.mu.RLock()
	matched := make([]*audit.AccessLogEntry, 0)
	for _, e := range s.entries {
		if match(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *audit.AccessLogEntry) int {
		return cmp.Compare(b.BlockID, a.BlockID)
	})
	if filter.Offset >= len(matched) {
		return []*audit.AccessLogEntry{}
	}
	matched = matched[filter.Offset:]
	return matched[:min(filter.Limit, len(matched))]
}
