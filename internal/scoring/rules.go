package scoring

import (
	"fmt"
	"strings"
)

// Rule ids reported in ActionSuggestion.Rules
const (
	RuleHighWaste          = "high_waste"
	RuleModerateWaste      = "moderate_waste"
	RuleLowEfficiency      = "low_efficiency"
	RuleModerateEfficiency = "moderate_efficiency"
	RuleLowTemperature     = "low_temperature"
	RuleHighTemperature    = "high_temperature"
	RuleLowBathRatio       = "low_bath_ratio"
	RuleHighBathRatio      = "high_bath_ratio"
	RuleOptimal            = "optimal"
)

// actionRule inspects a run and, when it fires, applies its delta to a and
// returns its id and explanation. A rule that does not fire returns "".
type actionRule func(p ProcessParameters, r ScoringResult, cfg ThresholdConfig, a *ActionSuggestion) (id, reason string)

// actionRules fire independently; their explanations join in this order.
var actionRules = []actionRule{
	wasteRule,
	efficiencyRule,
	temperatureRule,
	bathRatioRule,
}

// SuggestAction evaluates every adjustment rule against a scored run
func SuggestAction(p ProcessParameters, r ScoringResult, cfg ThresholdConfig) ActionSuggestion {
	var a ActionSuggestion
	var reasons []string

	for _, rule := range actionRules {
		id, reason := rule(p, r, cfg, &a)
		if id == "" {
			continue
		}
		a.Rules = append(a.Rules, id)
		reasons = append(reasons, reason)
	}

	if len(reasons) == 0 {
		a.Rules = []string{RuleOptimal}
		reasons = append(reasons, fmt.Sprintf(
			"System operating optimally (Efficiency: %.1f%%, Waste: %.1f kg). Maintain current parameters.",
			r.EnergyEfficiency, r.WasteAmount))
	}

	a.Reasoning = strings.Join(reasons, " ")
	return a
}

func wasteRule(_ ProcessParameters, r ScoringResult, cfg ThresholdConfig, a *ActionSuggestion) (string, string) {
	switch {
	case r.WasteAmount > cfg.HighWasteThreshold:
		a.AdjustFeedRate = cfg.FeedRateStepHigh
		return RuleHighWaste, fmt.Sprintf(
			"High waste detected (%.1f kg). Reduce feed rate by %s%% to improve conversion efficiency.",
			r.WasteAmount, magnitude(cfg.FeedRateStepHigh))
	case r.WasteAmount > cfg.ModerateWasteThreshold:
		a.AdjustFeedRate = cfg.FeedRateStepModerate
		return RuleModerateWaste, fmt.Sprintf(
			"Moderate waste (%.1f kg). Fine-tune feed rate by reducing %s%%.",
			r.WasteAmount, magnitude(cfg.FeedRateStepModerate))
	}
	return "", ""
}

func efficiencyRule(_ ProcessParameters, r ScoringResult, cfg ThresholdConfig, a *ActionSuggestion) (string, string) {
	switch {
	case r.EnergyEfficiency < cfg.LowEfficiencyThreshold:
		a.AdjustPower = cfg.PowerStepLow
		return RuleLowEfficiency, fmt.Sprintf(
			"Low efficiency (%.1f%%). Reduce power consumption by %s%% to improve energy efficiency.",
			r.EnergyEfficiency, magnitude(cfg.PowerStepLow))
	case r.EnergyEfficiency < cfg.ModerateEfficiencyThreshold:
		a.AdjustPower = cfg.PowerStepModerate
		return RuleModerateEfficiency, fmt.Sprintf(
			"Moderate efficiency (%.1f%%). Optimize power consumption by reducing %s%%.",
			r.EnergyEfficiency, magnitude(cfg.PowerStepModerate))
	}
	return "", ""
}

func temperatureRule(p ProcessParameters, _ ScoringResult, cfg ThresholdConfig, a *ActionSuggestion) (string, string) {
	band := fmt.Sprintf("%g-%g°C", cfg.OptimalTempLow, cfg.OptimalTempHigh)
	switch {
	case p.Temperature < cfg.OptimalTempLow:
		a.AdjustTemperature = cfg.TemperatureStep
		return RuleLowTemperature, fmt.Sprintf(
			"Temperature too low (%.1f°C). Increase by %g°C to reach optimal range (%s).",
			p.Temperature, cfg.TemperatureStep, band)
	case p.Temperature > cfg.OptimalTempHigh:
		a.AdjustTemperature = -cfg.TemperatureStep
		return RuleHighTemperature, fmt.Sprintf(
			"Temperature too high (%.1f°C). Decrease by %g°C to reach optimal range (%s).",
			p.Temperature, cfg.TemperatureStep, band)
	}
	return "", ""
}

func bathRatioRule(p ProcessParameters, _ ScoringResult, cfg ThresholdConfig, a *ActionSuggestion) (string, string) {
	band := fmt.Sprintf("%g-%g", cfg.OptimalBathLow, cfg.OptimalBathHigh)
	switch {
	case p.BathRatio < cfg.OptimalBathLow:
		a.AdjustBathRatio = cfg.BathRatioStep
		return RuleLowBathRatio, fmt.Sprintf(
			"Bath ratio low (%.2f). Increase by %g to reach optimal range (%s).",
			p.BathRatio, cfg.BathRatioStep, band)
	case p.BathRatio > cfg.OptimalBathHigh:
		a.AdjustBathRatio = -cfg.BathRatioStep
		return RuleHighBathRatio, fmt.Sprintf(
			"Bath ratio high (%.2f). Decrease by %g to reach optimal range (%s).",
			p.BathRatio, cfg.BathRatioStep, band)
	}
	return "", ""
}

func magnitude(step float64) string {
	if step < 0 {
		step = -step
	}
	return fmt.Sprintf("%g", step)
}
