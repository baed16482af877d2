package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ThresholdConfig carries every constant the engine uses. It is passed by
// value into Score so deployments can tune it without code changes.
type ThresholdConfig struct {
	Strategy Strategy `yaml:"strategy"`

	BaseConversionRate   float64 `yaml:"base_conversion_rate"`
	SimpleConversionRate float64 `yaml:"simple_conversion_rate"`

	OptimalTempLow  float64 `yaml:"optimal_temp_low"`
	OptimalTempHigh float64 `yaml:"optimal_temp_high"`
	TempLowCutoff   float64 `yaml:"temp_low_cutoff"`
	TempHighCutoff  float64 `yaml:"temp_high_cutoff"`

	OptimalBathLow    float64 `yaml:"optimal_bath_low"`
	OptimalBathHigh   float64 `yaml:"optimal_bath_high"`
	BathToleranceLow  float64 `yaml:"bath_tolerance_low"`
	BathToleranceHigh float64 `yaml:"bath_tolerance_high"`

	ReferenceTemperature float64 `yaml:"reference_temperature"`
	ReferencePressure    float64 `yaml:"reference_pressure"`

	WastePenaltyFactor float64 `yaml:"waste_penalty_factor"`
	QualityBonusFactor float64 `yaml:"quality_bonus_factor"`
	EfficiencyWeight   float64 `yaml:"efficiency_weight"`

	LowEfficiencyThreshold      float64 `yaml:"low_efficiency_threshold"`
	ModerateEfficiencyThreshold float64 `yaml:"moderate_efficiency_threshold"`
	HighEfficiencyThreshold     float64 `yaml:"high_efficiency_threshold"`

	ModerateWasteThreshold float64 `yaml:"moderate_waste_threshold"`
	HighWasteThreshold     float64 `yaml:"high_waste_threshold"`

	FeedRateStepHigh     float64 `yaml:"feed_rate_step_high"`
	FeedRateStepModerate float64 `yaml:"feed_rate_step_moderate"`
	PowerStepLow         float64 `yaml:"power_step_low"`
	PowerStepModerate    float64 `yaml:"power_step_moderate"`
	TemperatureStep      float64 `yaml:"temperature_step"`
	BathRatioStep        float64 `yaml:"bath_ratio_step"`

	SavingsCap float64 `yaml:"savings_cap"`
}

// DefaultThresholds returns the stock configuration
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		Strategy: StrategyContextual,

		BaseConversionRate:   0.85,
		SimpleConversionRate: 0.82,

		OptimalTempLow:  950,
		OptimalTempHigh: 970,
		TempLowCutoff:   930,
		TempHighCutoff:  980,

		OptimalBathLow:    1.2,
		OptimalBathHigh:   1.4,
		BathToleranceLow:  1.0,
		BathToleranceHigh: 1.6,

		ReferenceTemperature: 960,
		ReferencePressure:    101325,

		WastePenaltyFactor: 0.5,
		QualityBonusFactor: 0.1,
		EfficiencyWeight:   1.0,

		LowEfficiencyThreshold:      40,
		ModerateEfficiencyThreshold: 60,
		HighEfficiencyThreshold:     80,

		ModerateWasteThreshold: 10,
		HighWasteThreshold:     50,

		FeedRateStepHigh:     -5,
		FeedRateStepModerate: -2,
		PowerStepLow:         -10,
		PowerStepModerate:    -5,
		TemperatureStep:      10,
		BathRatioStep:        0.1,

		SavingsCap: 9999999.99,
	}
}

// LoadThresholds reads a YAML file over the defaults. Keys missing from the
// file keep their default values.
func LoadThresholds(path string) (ThresholdConfig, error) {
	cfg := DefaultThresholds()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read thresholds %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects non-finite constants and inverted bands
func (c ThresholdConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}

	// Ordered so the first bad field is always the one reported.
	named := []struct {
		name string
		v    float64
	}{
		{"base_conversion_rate", c.BaseConversionRate},
		{"simple_conversion_rate", c.SimpleConversionRate},
		{"optimal_temp_low", c.OptimalTempLow},
		{"optimal_temp_high", c.OptimalTempHigh},
		{"temp_low_cutoff", c.TempLowCutoff},
		{"temp_high_cutoff", c.TempHighCutoff},
		{"optimal_bath_low", c.OptimalBathLow},
		{"optimal_bath_high", c.OptimalBathHigh},
		{"bath_tolerance_low", c.BathToleranceLow},
		{"bath_tolerance_high", c.BathToleranceHigh},
		{"reference_temperature", c.ReferenceTemperature},
		{"reference_pressure", c.ReferencePressure},
		{"waste_penalty_factor", c.WastePenaltyFactor},
		{"quality_bonus_factor", c.QualityBonusFactor},
		{"efficiency_weight", c.EfficiencyWeight},
		{"low_efficiency_threshold", c.LowEfficiencyThreshold},
		{"moderate_efficiency_threshold", c.ModerateEfficiencyThreshold},
		{"high_efficiency_threshold", c.HighEfficiencyThreshold},
		{"moderate_waste_threshold", c.ModerateWasteThreshold},
		{"high_waste_threshold", c.HighWasteThreshold},
		{"feed_rate_step_high", c.FeedRateStepHigh},
		{"feed_rate_step_moderate", c.FeedRateStepModerate},
		{"power_step_low", c.PowerStepLow},
		{"power_step_moderate", c.PowerStepModerate},
		{"temperature_step", c.TemperatureStep},
		{"bath_ratio_step", c.BathRatioStep},
		{"savings_cap", c.SavingsCap},
	}
	for _, f := range named {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be finite", f.name)
		}
	}

	bands := []struct {
		name      string
		low, high float64
	}{
		{"optimal temperature band", c.OptimalTempLow, c.OptimalTempHigh},
		{"temperature cutoffs", c.TempLowCutoff, c.TempHighCutoff},
		{"optimal bath band", c.OptimalBathLow, c.OptimalBathHigh},
		{"bath tolerance band", c.BathToleranceLow, c.BathToleranceHigh},
		{"efficiency thresholds (low/moderate)", c.LowEfficiencyThreshold, c.ModerateEfficiencyThreshold},
		{"efficiency thresholds (moderate/high)", c.ModerateEfficiencyThreshold, c.HighEfficiencyThreshold},
		{"waste thresholds", c.ModerateWasteThreshold, c.HighWasteThreshold},
	}
	for _, b := range bands {
		if b.low > b.high {
			return fmt.Errorf("%s inverted: %v > %v", b.name, b.low, b.high)
		}
	}

	if c.EfficiencyWeight < 0 || c.WastePenaltyFactor < 0 || c.QualityBonusFactor < 0 {
		return fmt.Errorf("reward weights must be non-negative")
	}
	if c.SavingsCap < 0 {
		return fmt.Errorf("savings_cap must be non-negative")
	}
	return nil
}
