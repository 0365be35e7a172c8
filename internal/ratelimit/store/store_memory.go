package store

import (
	"context"
	"sync"
	"time"

	"rekamed/internal/ratelimit/models"
)

// InMemoryStore keeps one sliding window per key. Windows that have emptied
// are dropped by Sweep.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	hits   []time.Time
	window time.Duration
}

func (sw *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.hits) && !sw.hits[i].After(cutoff) {
		i++
	}
	sw.hits = sw.hits[i:]
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string]*slidingWindow)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.windows[key]
	if !ok {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	sw.window = limit.Window
	sw.expire(now)

	res := &models.Result{Limit: limit.Requests}
	if len(sw.hits) >= limit.Requests {
		res.ResetAt = sw.hits[0].Add(limit.Window)
		return res, nil
	}
	sw.hits = append(sw.hits, now)
	res.Allowed = true
	res.Remaining = limit.Requests - len(sw.hits)
	res.ResetAt = sw.hits[0].Add(limit.Window)
	return res, nil
}

// Sweep drops windows with no hits left at now and returns how many went.
func (s *InMemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, sw := range s.windows {
		sw.expire(now)
		if len(sw.hits) == 0 {
			delete(s.windows, key)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *InMemoryStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
