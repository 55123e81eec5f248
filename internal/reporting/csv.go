// Package reporting renders run results as CSV and Markdown.
package reporting

import (
	"fmt"
	"strings"

	"rai-sim-lab/internal/domain"
)

// RenderCSV renders tick snapshots as CSV string.
func RenderCSV(snapshots []*domain.TickSnapshot) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,tick,eth_usd_price,spot_price_eth,spot_price_usd,twap_price_eth,")
	sb.WriteString("redemption_price_usd,redemption_rate_hrly,")
	sb.WriteString("pool_rai_reserve,pool_eth_reserve,total_collateral,total_debt,safe_count\n")

	// Rows
	for _, s := range snapshots {
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.8f,%.6f,%.8f,%.6f,%.8f,%.6f,%.6f,%.6f,%.6f,%d\n",
			s.RunID,
			s.Tick,
			s.ETHUSDPrice,
			s.SpotPriceETH,
			s.SpotPriceUSD,
			s.TWAPPriceETH,
			s.RedemptionPriceUSD,
			s.RedemptionRateHrly,
			s.PoolRAIReserve,
			s.PoolETHReserve,
			s.TotalCollateral,
			s.TotalDebt,
			s.SafeCount,
		))
	}

	return sb.String()
}
