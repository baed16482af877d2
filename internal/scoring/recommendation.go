package scoring

import (
	"fmt"
	"strings"

	"github.com/aluoptimize/aluoptimize/pkg/money"
)

// Severity tiers of a recommendation, keyed on waste
const (
	SeverityHigh     = "high"
	SeverityModerate = "moderate"
	SeverityOptimal  = "optimal"
)

// Severity classifies a run by its waste amount
func Severity(r ScoringResult, cfg ThresholdConfig) string {
	switch {
	case r.WasteAmount > cfg.HighWasteThreshold:
		return SeverityHigh
	case r.WasteAmount > cfg.ModerateWasteThreshold:
		return SeverityModerate
	}
	return SeverityOptimal
}

var severityHeaders = map[string]string{
	SeverityHigh:     "High waste detected",
	SeverityModerate: "Moderate waste observed",
	SeverityOptimal:  "System efficiency optimal",
}

// RecommendationText renders the human-readable recommendation stored with
// each waste record.
func RecommendationText(r ScoringResult, a ActionSuggestion, cfg ThresholdConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", severityHeaders[Severity(r, cfg)])
	b.WriteString("Current Performance:\n")
	fmt.Fprintf(&b, "- Energy Efficiency: %.1f%%\n", r.EnergyEfficiency)
	fmt.Fprintf(&b, "- Waste Generated: %.1f kg\n\n", r.WasteAmount)
	b.WriteString("Recommendation:\n")
	fmt.Fprintf(&b, "%s\n\n", a.Reasoning)
	b.WriteString("Suggested Adjustments:\n")

	if a.AdjustFeedRate != 0 {
		fmt.Fprintf(&b, "- Feed Rate: %+.1f%%\n", a.AdjustFeedRate)
	}
	if a.AdjustPower != 0 {
		fmt.Fprintf(&b, "- Power Consumption: %+.1f%%\n", a.AdjustPower)
	}
	if a.AdjustTemperature != 0 {
		fmt.Fprintf(&b, "- Temperature: %+.1f°C\n", a.AdjustTemperature)
	}
	if a.AdjustBathRatio != 0 {
		fmt.Fprintf(&b, "- Bath Ratio: %+.2f\n", a.AdjustBathRatio)
	}
	if a.NoAdjustments() {
		b.WriteString("- No adjustments needed, maintain current parameters\n")
	}

	b.WriteString("\n(Approximate values derived from the submitted production input)")
	return b.String()
}

// SavingsMultiplier maps energy efficiency onto the recoverable value per kg of waste
func SavingsMultiplier(efficiency float64, cfg ThresholdConfig) float64 {
	switch {
	case efficiency >= cfg.HighEfficiencyThreshold:
		return 2.5
	case efficiency >= cfg.ModerateEfficiencyThreshold:
		return 2.0
	case efficiency >= cfg.LowEfficiencyThreshold:
		return 1.5
	}
	return 1.0
}

// EstimatedSavings values the recoverable waste of a run, capped at cfg.SavingsCap.
// The multiplier applies to the waste as stored (cents, half away from zero),
// so stored savings always equal stored waste times the multiplier.
func EstimatedSavings(r ScoringResult, cfg ThresholdConfig) money.Amount {
	stored := money.FromFloat(r.WasteAmount)
	savings := stored.Mul(SavingsMultiplier(r.EnergyEfficiency, cfg))
	return savings.Cap(money.FromFloat(cfg.SavingsCap))
}
