package memory

import (
	"context"
	"sort"
	"sync"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

type snapshotKey struct {
	runID string
	tick  int
}

// TickSnapshotStore is an in-memory implementation of storage.TickSnapshotStore.
type TickSnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.TickSnapshot
}

// NewTickSnapshotStore creates a new in-memory tick snapshot store.
func NewTickSnapshotStore() *TickSnapshotStore {
	return &TickSnapshotStore{
		data: make(map[snapshotKey]*domain.TickSnapshot),
	}
}

// Compile-time interface check.
var _ storage.TickSnapshotStore = (*TickSnapshotStore)(nil)

// Insert adds a single snapshot. Returns ErrDuplicateKey if (run_id, tick) exists.
func (s *TickSnapshotStore) Insert(_ context.Context, snap *domain.TickSnapshot) error {
	if snap == nil || snap.RunID == "" || snap.Tick < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(snap)
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *TickSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	seen := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.Tick < 0 {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{runID: snap.RunID, tick: snap.Tick}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range seen {
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, snap := range snapshots {
		if err := s.insertLocked(snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *TickSnapshotStore) insertLocked(snap *domain.TickSnapshot) error {
	k := snapshotKey{runID: snap.RunID, tick: snap.Tick}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *snap
	s.data[k] = &cp
	return nil
}

// GetByRunID retrieves all snapshots for a run, ordered by tick ASC.
func (s *TickSnapshotStore) GetByRunID(_ context.Context, runID string) ([]*domain.TickSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.TickSnapshot
	for k, snap := range s.data {
		if k.runID == runID {
			cp := *snap
			snaps = append(snaps, &cp)
		}
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Tick < snaps[j].Tick })
	return snaps, nil
}

// GetByTickRange retrieves snapshots for a run within [start, end] (inclusive).
func (s *TickSnapshotStore) GetByTickRange(_ context.Context, runID string, start, end int) ([]*domain.TickSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.TickSnapshot
	for k, snap := range s.data {
		if k.runID == runID && k.tick >= start && k.tick <= end {
			cp := *snap
			snaps = append(snaps, &cp)
		}
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Tick < snaps[j].Tick })
	return snaps, nil
}
