package store

import (
	"context"
	"sort"
	"sync"

	"downloadgate/internal/license/models"
	"downloadgate/pkg/platform/sentinel"
)

// InMemoryStore is a license store for tests and demo mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	licenses map[string]*models.License
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{licenses: make(map[string]*models.License)}
}

func (s *InMemoryStore) FindByKey(_ context.Context, key string) (*models.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.licenses[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *InMemoryStore) Create(_ context.Context, l *models.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.licenses[l.Key]; exists {
		return sentinel.ErrConflict
	}
	cp := *l
	s.licenses[l.Key] = &cp
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.License, 0, len(s.licenses))
	for _, l := range s.licenses {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.licenses, key)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}
