package reporting

import (
	"fmt"
	"strings"
	"time"

	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/metrics"
)

// Report bundles what the Markdown renderer needs.
type Report struct {
	GeneratedAt time.Time
	Run         *domain.RunRecord
	Summary     *metrics.RunSummary
}

// RenderMarkdown renders a run report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Run Report: %s\n\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run parameters
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Seed | %d |\n", r.Run.Seed))
	sb.WriteString(fmt.Sprintf("| Days | %d |\n", r.Run.Days))
	sb.WriteString(fmt.Sprintf("| Agents | %d |\n", r.Run.AgentCount))
	sb.WriteString(fmt.Sprintf("| Controller | %s |\n", r.Run.Controller))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Run.Status))
	if r.Run.FailureMsg != nil {
		sb.WriteString(fmt.Sprintf("| Failure | %s |\n", *r.Run.FailureMsg))
	}
	sb.WriteString("\n")

	// Peg tracking
	sb.WriteString("## Peg Tracking\n\n")
	sb.WriteString(fmt.Sprintf("Ticks: %d | Time within ±%.1f%% of redemption: %.1f%%\n\n",
		r.Summary.Ticks, metrics.PegBandPct, 100*r.Summary.TimeInBand))
	sb.WriteString("| Deviation (% of redemption) | Value |\n")
	sb.WriteString("|-----------------------------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Mean | %.4f |\n", r.Summary.DeviationMean))
	sb.WriteString(fmt.Sprintf("| Median | %.4f |\n", r.Summary.DeviationMedian))
	sb.WriteString(fmt.Sprintf("| P10 | %.4f |\n", r.Summary.DeviationP10))
	sb.WriteString(fmt.Sprintf("| P90 | %.4f |\n", r.Summary.DeviationP90))
	sb.WriteString(fmt.Sprintf("| Min | %.4f |\n", r.Summary.DeviationMin))
	sb.WriteString(fmt.Sprintf("| Max | %.4f |\n", r.Summary.DeviationMax))
	sb.WriteString(fmt.Sprintf("| Stddev | %.4f |\n", r.Summary.DeviationStddev))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Redemption price moved %.6f -> %.6f USD.\n",
		r.Summary.RedemptionStart, r.Summary.RedemptionEnd))

	return sb.String()
}
