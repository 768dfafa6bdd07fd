package store

import (
	"context"
	"sync"
	"time"

	"downloadgate/internal/session/models"
	"downloadgate/pkg/platform/sentinel"
)

// InMemorySessionStore is the live session table. Sessions never outlive the
// process.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.Token]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[session.Token] = session
	return nil
}

// FindActive returns the session for token if it is active at now. An
// expired entry is evicted in the same critical section and reported as
// sentinel.ErrExpired.
func (s *InMemorySessionStore) FindActive(_ context.Context, token string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !now.Before(session.ExpiresAt) {
		delete(s.sessions, token)
		return nil, sentinel.ErrExpired
	}
	if now.Before(session.IssuedAt) {
		return nil, sentinel.ErrInvalidState
	}
	cp := *session
	return &cp, nil
}

// DeleteExpired removes every session expired at now and returns how many
// were removed.
func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemorySessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
