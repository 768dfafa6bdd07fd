package bucket

import (
	"context"
	"sync"
	"time"

	"downloadgate/internal/ratelimit/models"
)

// InMemoryBucketStore implements a fixed-window counter per key. Not shared
// across replicas; use RedisBucketStore for that.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*fixedWindow
	now     func() time.Time
}

// fixedWindow is one bucket. count never exceeds the limit it was admitted
// against.
type fixedWindow struct {
	start  time.Time
	count  int
	window time.Duration
}

type Option func(*InMemoryBucketStore)

func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

// NewInMemoryBucketStore creates a new in-memory bucket store.
func NewInMemoryBucketStore(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*fixedWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow resets an elapsed window, then admits and increments in one critical
// section. A denied request does not count.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := s.buckets[key]
	if b == nil || now.Sub(b.start) >= b.window {
		b = &fixedWindow{start: now, window: window}
		s.buckets[key] = b
	}
	resetAt := b.start.Add(b.window)

	if b.count >= limit {
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: models.RetryAfterSeconds(resetAt, now),
		}, nil
	}

	b.count++
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - b.count,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// GetCurrentCount returns the count of the current window for key.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	if b == nil || s.now().Sub(b.start) >= b.window {
		return 0, nil
	}
	return b.count, nil
}

// Prune drops buckets whose window has elapsed.
func (s *InMemoryBucketStore) Prune(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, b := range s.buckets {
		if now.Sub(b.start) >= b.window {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}

// Run prunes elapsed buckets every interval until ctx is done.
func (s *InMemoryBucketStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = s.Prune(ctx)
		}
	}
}
