package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"rekamed/internal/identity/models"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts or replaces a user. An email owned by another user is a conflict.
func (s *InMemoryStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if owner, ok := s.byEmail[email]; ok && owner != user.ID {
		return sentinel.ErrConflict
	}
	if prev, ok := s.users[user.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
	}
	u := *user
	s.users[user.ID] = &u
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *u
	return &c, nil
}

// FindByIDs skips unknown ids.
func (s *InMemoryStore) FindByIDs(_ context.Context, ids []id.UserID) (map[id.UserID]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.UserID]*models.User, len(ids))
	for _, uid := range ids {
		if u, ok := s.users[uid]; ok {
			c := *u
			out[uid] = &c
		}
	}
	return out, nil
}

func (s *InMemoryStore) Search(_ context.Context, filter models.SearchFilter) ([]*models.User, error) {
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.User
	for _, u := range s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
