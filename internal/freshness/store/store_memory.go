package store

import (
	"context"
	"sync"
	"time"
)

// InMemoryReplayStore is a replay set bounded by entry TTL.
type InMemoryReplayStore struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

type Option func(*InMemoryReplayStore)

func WithClock(now func() time.Time) Option {
	return func(s *InMemoryReplayStore) {
		s.now = now
	}
}

func NewInMemory(opts ...Option) *InMemoryReplayStore {
	s := &InMemoryReplayStore{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryReplayStore) Remember(_ context.Context, requestID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, seen := s.until[requestID]; seen && now.Before(exp) {
		return false, nil
	}
	s.until[requestID] = now.Add(ttl)
	return true, nil
}

// Sweep evicts expired ids and returns how many were removed.
func (s *InMemoryReplayStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, exp := range s.until {
		if !now.Before(exp) {
			delete(s.until, id)
			removed++
		}
	}
	return removed
}

func (s *InMemoryReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.until)
}

// Run sweeps every interval until ctx is done.
func (s *InMemoryReplayStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
