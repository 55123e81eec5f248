// Package memory provides in-memory store implementations, used by default
// and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunRecord // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.RunRecord),
	}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert registers a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.RunRecord) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *r
	s.data[r.RunID] = &cp
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *r
	return &cp, nil
}

// GetAll retrieves all runs, ordered by started_at ASC.
func (s *RunStore) GetAll(_ context.Context) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.RunRecord, 0, len(s.data))
	for _, r := range s.data {
		cp := *r
		runs = append(runs, &cp)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAtMs == runs[j].StartedAtMs {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartedAtMs < runs[j].StartedAtMs
	})
	return runs, nil
}

// SetStatus transitions a run to the given status.
func (s *RunStore) SetStatus(_ context.Context, runID, status string, failureMsg *string, endedAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[runID]
	if !exists {
		return storage.ErrNotFound
	}

	r.Status = status
	r.FailureMsg = failureMsg
	r.EndedAtMs = &endedAtMs
	return nil
}
