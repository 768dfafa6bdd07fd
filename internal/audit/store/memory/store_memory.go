package memory

import (
	"context"
	"sync"

	"downloadgate/internal/audit"
)

// InMemoryStore keeps records in append order, one per request id.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   []audit.Record
	byRequest map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byRequest: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byRequest[rec.RequestID]; dup {
		return nil
	}
	s.byRequest[rec.RequestID] = struct{}{}
	s.records = append(s.records, rec)
	return nil
}

// ListAll returns every record in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...), nil
}

// ListByFile returns the records of one catalog file.
func (s *InMemoryStore) ListByFile(_ context.Context, fileID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.FileID == fileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byRequest = make(map[string]struct{})
}
