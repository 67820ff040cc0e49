package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/dea/internal/models"
)

// InterpretEfficiency returns a plain-language label for θ*.
func InterpretEfficiency(theta float64) string {
	switch {
	case theta >= 1:
		return "Efficient (on the frontier)"
	case theta >= 0.9:
		return "Near-efficient (≥0.90)"
	case theta >= 0.7:
		return "Moderately inefficient (0.70-0.90)"
	default:
		return "Inefficient (<0.70)"
	}
}

// InterpretReduction explains θ* as the proportional input reduction that
// would bring the DMU onto the frontier.
func InterpretReduction(theta float64) string {
	if theta >= 1 {
		return "No proportional input reduction is possible."
	}
	return fmt.Sprintf("Could produce the same outputs with %.1f%% of its inputs (a %.1f%% reduction).",
		theta*100, (1-theta)*100)
}

// FormatSummaryReport produces a plain-language report of an outcome.
func FormatSummaryReport(outcome *models.Outcome) string {
	var b strings.Builder

	duration := time.Duration(outcome.DurationMs) * time.Millisecond

	b.WriteString("=== Interpretation ===\n\n")
	if s := outcome.Summary; s != nil {
		b.WriteString(fmt.Sprintf("Mean Efficiency: %.4f — %s\n", s.MeanEfficiency, InterpretEfficiency(s.MeanEfficiency)))
		b.WriteString(fmt.Sprintf("Efficient DMUs:  %d of %d evaluated\n", s.Efficient, s.Evaluated))
		if ci := s.BootstrapCI; ci != nil {
			b.WriteString(fmt.Sprintf("%.0f%% CI:         [%.4f, %.4f]\n", ci.ConfidenceLevel*100, ci.Lower, ci.Upper))
		}
	}
	b.WriteString(fmt.Sprintf("Duration:        %s\n", formatDuration(duration)))
	if n := outcome.Skipped(); n > 0 {
		b.WriteString(fmt.Sprintf("Skipped:         %d DMU(s) had no optimal solution\n", n))
	}

	if len(outcome.Records) > 0 {
		b.WriteString("\nPer-DMU Interpretation:\n")
		for _, r := range outcome.Records {
			icon := "✓"
			if !r.IsEfficient() {
				icon = "✗"
			}
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", icon, r.DMU, InterpretEfficiency(r.Efficiency)))
			b.WriteString(fmt.Sprintf("    %s\n", InterpretReduction(r.Efficiency)))
			if !r.IsEfficient() && len(r.ReferenceSet) > 0 {
				b.WriteString(fmt.Sprintf("    Benchmark against: %s\n", JoinReferenceSet(r.ReferenceSet)))
			}
		}
	}

	return b.String()
}
