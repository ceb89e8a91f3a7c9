package conversation

import (
	"context"
	"sync"

	"digitaltwin/pkg/twintypes"
)

// MemoryStore keeps histories in process memory. Used for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]twintypes.Record
	saves    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]twintypes.Record)}
}

// Backend returns "memory".
func (s *MemoryStore) Backend() string {
	return "memory"
}

// Load returns a copy of the session's history.
func (s *MemoryStore) Load(_ context.Context, id string) ([]twintypes.Record, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.sessions[id]
	if !ok {
		return []twintypes.Record{}, nil
	}
	return twintypes.CloneRecords(records), nil
}

// Save replaces the session's history with a copy of records.
func (s *MemoryStore) Save(_ context.Context, id string, records []twintypes.Record) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = twintypes.CloneRecords(records)
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
