// Package scoring computes predicted output, efficiency, quality, waste, a
// composite reward and suggested parameter adjustments for one production run.
//
// Everything in this package is pure: no I/O, no shared state, no randomness.
// Identical inputs always produce identical outputs.
package scoring

import (
	"fmt"
	"strings"
)

// ProductionLine identifies a physical production line
type ProductionLine string

const (
	LineA ProductionLine = "LINE_A"
	LineB ProductionLine = "LINE_B"
	LineC ProductionLine = "LINE_C"
)

// Lines lists every known production line in display order
var Lines = []ProductionLine{LineA, LineB, LineC}

// Valid reports whether l is a known production line
func (l ProductionLine) Valid() bool {
	for _, known := range Lines {
		if l == known {
			return true
		}
	}
	return false
}

// Label returns the human readable line name
func (l ProductionLine) Label() string {
	switch l {
	case LineA:
		return "Production Line A"
	case LineB:
		return "Production Line B"
	case LineC:
		return "Production Line C"
	}
	return string(l)
}

// Strategy selects the formula family used to predict output and quality
type Strategy string

const (
	// StrategyContextual adjusts conversion by temperature and bath-ratio bands.
	StrategyContextual Strategy = "contextual"
	// StrategySimple is the legacy fixed 82% conversion with reference-point quality.
	StrategySimple Strategy = "simple"
)

// ParseStrategy parses a strategy name, case-insensitively
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyContextual:
		return StrategyContextual, nil
	case StrategySimple:
		return StrategySimple, nil
	}
	return "", fmt.Errorf("unknown scoring strategy %q", s)
}

// UnmarshalText lets strategies be decoded from YAML and JSON strings
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ModelVersion returns the version tag recorded in prediction logs
func (s Strategy) ModelVersion() string {
	if s == StrategySimple {
		return "v1.0.0-simple"
	}
	return "v2.0.0-contextual"
}

// ProcessParameters are the inputs of one production run
type ProcessParameters struct {
	ProductionLine       ProductionLine `json:"production_line"`
	FeedRate             float64        `json:"feed_rate"`         // kg/h
	Temperature          float64        `json:"temperature"`       // °C
	Pressure             float64        `json:"pressure"`          // Pa
	PowerConsumption     float64        `json:"power_consumption"` // kWh
	AnodeEffect          float64        `json:"anode_effect"`
	BathRatio            float64        `json:"bath_ratio"`
	AluminaConcentration float64        `json:"alumina_concentration"` // %
}

// ScoringResult holds the predicted production figures
type ScoringResult struct {
	PredictedOutput  float64 `json:"predicted_output"`
	EnergyEfficiency float64 `json:"energy_efficiency"`
	OutputQuality    float64 `json:"output_quality"`
	WasteAmount      float64 `json:"waste_amount"`
	// ExceedsFeed is set when the predicted output is larger than the feed
	// rate, which the contextual multipliers allow. The value is not clamped.
	ExceedsFeed bool `json:"exceeds_feed"`
}

// RewardBreakdown is the composite reward and its parts
type RewardBreakdown struct {
	EfficiencyScore float64 `json:"efficiency_score"`
	WastePenalty    float64 `json:"waste_penalty"`
	QualityBonus    float64 `json:"quality_bonus"`
	TotalReward     float64 `json:"total_reward"`
}

// ActionSuggestion holds proposed parameter adjustments
type ActionSuggestion struct {
	AdjustFeedRate    float64  `json:"adjust_feed_rate"`   // percent
	AdjustPower       float64  `json:"adjust_power"`       // percent
	AdjustTemperature float64  `json:"adjust_temperature"` // °C
	AdjustBathRatio   float64  `json:"adjust_bath_ratio"`  // absolute
	Reasoning         string   `json:"reasoning"`
	Rules             []string `json:"rules"`
}

// NoAdjustments reports whether every delta is zero
func (a ActionSuggestion) NoAdjustments() bool {
	return a.AdjustFeedRate == 0 && a.AdjustPower == 0 &&
		a.AdjustTemperature == 0 && a.AdjustBathRatio == 0
}

// Outcome is the complete, atomic result of scoring one run
type Outcome struct {
	Strategy   Strategy          `json:"strategy"`
	Parameters ProcessParameters `json:"state"`
	Result     ScoringResult     `json:"result"`
	Reward     RewardBreakdown   `json:"reward"`
	Action     ActionSuggestion  `json:"action"`
}
