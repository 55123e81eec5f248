package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

func createTestRun(runID string, startedAtMs int64) *domain.RunRecord {
	return &domain.RunRecord{
		RunID:       runID,
		Seed:        42,
		Days:        30,
		AgentCount:  120,
		Controller:  "P",
		Status:      domain.RunStatusRunning,
		StartedAtMs: startedAtMs,
	}
}

func TestRunStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := createTestRun("run-001", 1000)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 30, got.Days)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Nil(t, got.EndedAtMs)
}

func TestRunStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := createTestRun("run-001", 1000)
	require.NoError(t, store.Insert(ctx, run))

	err := store.Insert(ctx, run)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	_, err := store.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.SetStatus(ctx, "nope", domain.RunStatusFinished, nil, 2000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_SetStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	require.NoError(t, store.Insert(ctx, createTestRun("run-001", 1000)))

	err := store.SetStatus(ctx, "run-001", domain.RunStatusFailed, ptr("redemption price went negative"), 2000)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	require.NotNil(t, got.FailureMsg)
	assert.Equal(t, "redemption price went negative", *got.FailureMsg)
	require.NotNil(t, got.EndedAtMs)
	assert.Equal(t, int64(2000), *got.EndedAtMs)
}

func TestRunStore_GetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	require.NoError(t, store.Insert(ctx, createTestRun("run-b", 2000)))
	require.NoError(t, store.Insert(ctx, createTestRun("run-a", 1000)))

	runs, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
}
