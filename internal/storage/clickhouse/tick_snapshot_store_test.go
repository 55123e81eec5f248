package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

func createTestSnapshot(runID string, tick int) *domain.TickSnapshot {
	return &domain.TickSnapshot{
		RunID:              runID,
		Tick:               tick,
		ETHUSDPrice:        300,
		SpotPriceETH:       0.01,
		SpotPriceUSD:       3.0,
		TWAPPriceETH:       0.0101,
		RedemptionPriceUSD: 3.0,
		RedemptionRateHrly: 0.0001,
		PoolRAIReserve:     1000,
		PoolETHReserve:     10,
		TotalCollateral:    25,
		TotalDebt:          1200,
		SafeCount:          3,
	}
}

func TestTickSnapshotStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickSnapshotStore(conn)

	batch := []*domain.TickSnapshot{
		createTestSnapshot("run-001", 0),
		createTestSnapshot("run-001", 1),
		createTestSnapshot("run-001", 2),
		createTestSnapshot("run-002", 0),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	snaps, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 0, snaps[0].Tick)
	assert.Equal(t, 2, snaps[2].Tick)
	assert.Equal(t, 300.0, snaps[0].ETHUSDPrice)
	assert.Equal(t, 3, snaps[0].SafeCount)
}

func TestTickSnapshotStore_DuplicateDetection(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickSnapshotStore(conn)

	require.NoError(t, store.Insert(ctx, createTestSnapshot("run-001", 5)))

	err := store.Insert(ctx, createTestSnapshot("run-001", 5))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Intra-batch duplicate
	err = store.InsertBulk(ctx, []*domain.TickSnapshot{
		createTestSnapshot("run-002", 0),
		createTestSnapshot("run-002", 0),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTickSnapshotStore_GetByTickRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickSnapshotStore(conn)

	var batch []*domain.TickSnapshot
	for tick := 0; tick < 10; tick++ {
		batch = append(batch, createTestSnapshot("run-001", tick))
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	snaps, err := store.GetByTickRange(ctx, "run-001", 3, 6)
	require.NoError(t, err)
	require.Len(t, snaps, 4)
	assert.Equal(t, 3, snaps[0].Tick)
	assert.Equal(t, 6, snaps[3].Tick)
}
