package clickhouse

import (
	"context"
	"fmt"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/storage"
)

// TickSnapshotStore implements storage.TickSnapshotStore using ClickHouse.
type TickSnapshotStore struct {
	conn *Conn
}

// NewTickSnapshotStore creates a new TickSnapshotStore.
func NewTickSnapshotStore(conn *Conn) *TickSnapshotStore {
	return &TickSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickSnapshotStore = (*TickSnapshotStore)(nil)

// Insert adds a single snapshot. Returns ErrDuplicateKey if (run_id, tick) exists.
func (s *TickSnapshotStore) Insert(ctx context.Context, snap *domain.TickSnapshot) error {
	if snap == nil || snap.RunID == "" || snap.Tick < 0 {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.TickSnapshot{snap})
}

// InsertBulk adds multiple snapshots. Fails entire batch on any duplicate.
// MergeTree does not enforce uniqueness, so duplicates are checked explicitly
// before the batch is sent.
func (s *TickSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	type key struct {
		runID string
		tick  int
	}
	seen := make(map[key]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.Tick < 0 {
			return storage.ErrInvalidInput
		}
		k := key{snap.RunID, snap.Tick}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap.RunID, snap.Tick)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tick_snapshots (
			run_id, tick, eth_usd_price,
			spot_price_eth, spot_price_usd, twap_price_eth,
			redemption_price_usd, redemption_rate_hrly,
			pool_rai_reserve, pool_eth_reserve,
			total_collateral, total_debt, safe_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.RunID, uint32(snap.Tick), snap.ETHUSDPrice,
			snap.SpotPriceETH, snap.SpotPriceUSD, snap.TWAPPriceETH,
			snap.RedemptionPriceUSD, snap.RedemptionRateHrly,
			snap.PoolRAIReserve, snap.PoolETHReserve,
			snap.TotalCollateral, snap.TotalDebt, uint32(snap.SafeCount),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all snapshots for a run, ordered by tick ASC.
func (s *TickSnapshotStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TickSnapshot, error) {
	query := `
		SELECT
			run_id, tick, eth_usd_price,
			spot_price_eth, spot_price_usd, twap_price_eth,
			redemption_price_usd, redemption_rate_hrly,
			pool_rai_reserve, pool_eth_reserve,
			total_collateral, total_debt, safe_count
		FROM tick_snapshots
		WHERE run_id = ?
		ORDER BY tick ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByTickRange retrieves snapshots for a run within [start, end] (inclusive).
func (s *TickSnapshotStore) GetByTickRange(ctx context.Context, runID string, start, end int) ([]*domain.TickSnapshot, error) {
	query := `
		SELECT
			run_id, tick, eth_usd_price,
			spot_price_eth, spot_price_usd, twap_price_eth,
			redemption_price_usd, redemption_rate_hrly,
			pool_rai_reserve, pool_eth_reserve,
			total_collateral, total_debt, safe_count
		FROM tick_snapshots
		WHERE run_id = ? AND tick >= ? AND tick <= ?
		ORDER BY tick ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, uint32(start), uint32(end))
	if err != nil {
		return nil, fmt.Errorf("query by tick range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// exists checks if a snapshot with the given key exists.
func (s *TickSnapshotStore) exists(ctx context.Context, runID string, tick int) (bool, error) {
	query := `
		SELECT count(*) FROM tick_snapshots
		WHERE run_id = ? AND tick = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID, uint32(tick)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver rows the scan helper needs.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.TickSnapshot, error) {
	var snaps []*domain.TickSnapshot

	for rows.Next() {
		var snap domain.TickSnapshot
		var tick, safeCount uint32

		err := rows.Scan(
			&snap.RunID, &tick, &snap.ETHUSDPrice,
			&snap.SpotPriceETH, &snap.SpotPriceUSD, &snap.TWAPPriceETH,
			&snap.RedemptionPriceUSD, &snap.RedemptionRateHrly,
			&snap.PoolRAIReserve, &snap.PoolETHReserve,
			&snap.TotalCollateral, &snap.TotalDebt, &safeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick snapshot row: %w", err)
		}

		snap.Tick = int(tick)
		snap.SafeCount = int(safeCount)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick snapshot rows: %w", err)
	}

	return snaps, nil
}
