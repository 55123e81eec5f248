package storage

import (
	"context"

	"rai-sim-lab/internal/domain"
)

// RunStore provides access to simulation_runs storage.
type RunStore interface {
	// Insert registers a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// GetAll retrieves all runs, ordered by started_at ASC.
	GetAll(ctx context.Context) ([]*domain.RunRecord, error)

	// SetStatus transitions a run to the given status. The failure message is
	// stored only for failed runs. Returns ErrNotFound if not exists.
	SetStatus(ctx context.Context, runID, status string, failureMsg *string, endedAtMs int64) error
}

// TickSnapshotStore provides access to tick_snapshots storage.
type TickSnapshotStore interface {
	// Insert adds a single snapshot. Returns ErrDuplicateKey if (run_id, tick) exists.
	Insert(ctx context.Context, s *domain.TickSnapshot) error

	// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, snapshots []*domain.TickSnapshot) error

	// GetByRunID retrieves all snapshots for a run, ordered by tick ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TickSnapshot, error)

	// GetByTickRange retrieves snapshots for a run within [start, end] (inclusive).
	GetByTickRange(ctx context.Context, runID string, start, end int) ([]*domain.TickSnapshot, error)
}
