// Package memory implements ports.CheckpointStore in process memory. It is
// the lowest-priority backend: no persistence across restarts, used for tests
// and degraded-mode operation when neither sqlite nor redis is reachable.
package memory

import (
	"context"
	"sync"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.ExecutionState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ExecutionState),
	}
}

// Save persists a deep copy of the state so later caller mutations cannot
// leak into the store.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.ExecutionState) error {
	cp := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[threadID] = cp
	return nil
}

// Load retrieves a copy of the state from memory.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	return state.Clone(), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns known thread IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	return threads, nil
}
