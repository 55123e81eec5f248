package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

// TickSnapshotStore implements storage.TickSnapshotStore using PostgreSQL.
type TickSnapshotStore struct {
	pool *Pool
}

// NewTickSnapshotStore creates a new TickSnapshotStore.
func NewTickSnapshotStore(pool *Pool) *TickSnapshotStore {
	return &TickSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TickSnapshotStore = (*TickSnapshotStore)(nil)

const insertSnapshotQuery = `
	INSERT INTO tick_snapshots (
		run_id, tick, eth_usd_price,
		spot_price_eth, spot_price_usd, twap_price_eth,
		redemption_price_usd, redemption_rate_hrly,
		pool_rai_reserve, pool_eth_reserve,
		total_collateral, total_debt, safe_count
	) VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8,
		$9, $10,
		$11, $12, $13
	)
`

const selectSnapshotColumns = `
	SELECT
		run_id, tick, eth_usd_price,
		spot_price_eth, spot_price_usd, twap_price_eth,
		redemption_price_usd, redemption_rate_hrly,
		pool_rai_reserve, pool_eth_reserve,
		total_collateral, total_debt, safe_count
	FROM tick_snapshots
`

// Insert adds a single snapshot. Returns ErrDuplicateKey if (run_id, tick) exists.
func (s *TickSnapshotStore) Insert(ctx context.Context, snap *domain.TickSnapshot) error {
	_, err := s.pool.Exec(ctx, insertSnapshotQuery, snapshotArgs(snap)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tick snapshot: %w", err)
	}
	return nil
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *TickSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, snap := range snapshots {
		if _, err := tx.Exec(ctx, insertSnapshotQuery, snapshotArgs(snap)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert tick snapshot in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRunID retrieves all snapshots for a run, ordered by tick ASC.
func (s *TickSnapshotStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TickSnapshot, error) {
	query := selectSnapshotColumns + `
		WHERE run_id = $1
		ORDER BY tick ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get tick snapshots by run id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByTickRange retrieves snapshots for a run within [start, end] (inclusive).
func (s *TickSnapshotStore) GetByTickRange(ctx context.Context, runID string, start, end int) ([]*domain.TickSnapshot, error) {
	query := selectSnapshotColumns + `
		WHERE run_id = $1 AND tick >= $2 AND tick <= $3
		ORDER BY tick ASC
	`

	rows, err := s.pool.Query(ctx, query, runID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get tick snapshots by tick range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// snapshotArgs orders the fields to match insertSnapshotQuery.
func snapshotArgs(snap *domain.TickSnapshot) []any {
	return []any{
		snap.RunID, snap.Tick, snap.ETHUSDPrice,
		snap.SpotPriceETH, snap.SpotPriceUSD, snap.TWAPPriceETH,
		snap.RedemptionPriceUSD, snap.RedemptionRateHrly,
		snap.PoolRAIReserve, snap.PoolETHReserve,
		snap.TotalCollateral, snap.TotalDebt, snap.SafeCount,
	}
}

// scanSnapshots scans multiple rows into a slice of TickSnapshot.
func scanSnapshots(rows pgx.Rows) ([]*domain.TickSnapshot, error) {
	var snaps []*domain.TickSnapshot

	for rows.Next() {
		var snap domain.TickSnapshot

		err := rows.Scan(
			&snap.RunID, &snap.Tick, &snap.ETHUSDPrice,
			&snap.SpotPriceETH, &snap.SpotPriceUSD, &snap.TWAPPriceETH,
			&snap.RedemptionPriceUSD, &snap.RedemptionRateHrly,
			&snap.PoolRAIReserve, &snap.PoolETHReserve,
			&snap.TotalCollateral, &snap.TotalDebt, &snap.SafeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick snapshot row: %w", err)
		}

		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick snapshot rows: %w", err)
	}

	return snaps, nil
}
