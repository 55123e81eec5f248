// Package metrics computes summary statistics over the tick snapshots of a
// finished run: how far the market traded from the redemption price and how
// much of the run it spent close to it.
package metrics

import (
	"math"
	"sort"

	"rai-sim-lab/internal/domain"
)

// PegBandPct is the deviation band, in percent of the redemption price,
// inside which a tick counts as on-peg.
const PegBandPct = 1.0

// RunSummary aggregates peg-tracking statistics for one run.
type RunSummary struct {
	RunID string
	Ticks int

	// Deviation of the market price from the redemption price, in percent of
	// the redemption price, signed (positive = market above redemption).
	DeviationMean   float64
	DeviationMedian float64
	DeviationP10    float64
	DeviationP90    float64
	DeviationMin    float64
	DeviationMax    float64
	DeviationStddev float64

	// Share of ticks with |deviation| <= PegBandPct, in [0, 1].
	TimeInBand float64

	// Endpoints of the redemption price path.
	RedemptionStart float64
	RedemptionEnd   float64
}

// ComputeRunSummary calculates all metrics from a run's snapshots.
// Snapshots are sorted by tick before computing.
func ComputeRunSummary(runID string, snapshots []*domain.TickSnapshot) *RunSummary {
	n := len(snapshots)
	if n == 0 {
		return &RunSummary{RunID: runID}
	}

	sorted := make([]*domain.TickSnapshot, n)
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	deviations := make([]float64, n)
	inBand := 0
	for i, snap := range sorted {
		deviations[i] = 100 * (snap.SpotPriceUSD - snap.RedemptionPriceUSD) / snap.RedemptionPriceUSD
		if math.Abs(deviations[i]) <= PegBandPct {
			inBand++
		}
	}

	sortedDevs := make([]float64, n)
	copy(sortedDevs, deviations)
	sort.Float64s(sortedDevs)

	mean := computeMean(deviations)

	return &RunSummary{
		RunID: runID,
		Ticks: n,

		DeviationMean:   mean,
		DeviationMedian: computePercentile(sortedDevs, 0.50),
		DeviationP10:    computePercentile(sortedDevs, 0.10),
		DeviationP90:    computePercentile(sortedDevs, 0.90),
		DeviationMin:    sortedDevs[0],
		DeviationMax:    sortedDevs[n-1],
		DeviationStddev: computeStddev(deviations, mean),

		TimeInBand: float64(inBand) / float64(n),

		RedemptionStart: sorted[0].RedemptionPriceUSD,
		RedemptionEnd:   sorted[n-1].RedemptionPriceUSD,
	}
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC. p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
