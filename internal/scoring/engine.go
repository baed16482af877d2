package scoring

import "math"

// Score evaluates one production run. It is total for every finite input:
// divisions are guarded and bounded outputs are clamped. Business validation
// of the parameters is the caller's job (see ValidateParameters).
//
// An unknown cfg.Strategy is scored with the contextual formulas.
func Score(p ProcessParameters, cfg ThresholdConfig) Outcome {
	strategy := cfg.Strategy
	if strategy != StrategySimple {
		strategy = StrategyContextual
	}

	var predicted, quality float64
	switch strategy {
	case StrategySimple:
		predicted = p.FeedRate * cfg.SimpleConversionRate
		quality = simpleQuality(p, cfg)
	default:
		predicted = p.FeedRate * cfg.BaseConversionRate * temperatureFactor(p.Temperature, cfg) * bathFactor(p.BathRatio, cfg)
		quality = clamp(p.Temperature/10+p.BathRatio*20, 0, 100)
	}

	result := ScoringResult{
		PredictedOutput:  predicted,
		EnergyEfficiency: EnergyEfficiency(p.FeedRate, p.PowerConsumption),
		OutputQuality:    quality,
		WasteAmount:      math.Max(0, p.FeedRate-predicted),
		ExceedsFeed:      predicted > p.FeedRate,
	}

	return Outcome{
		Strategy:   strategy,
		Parameters: p,
		Result:     result,
		Reward:     ComputeReward(p, result, cfg),
		Action:     SuggestAction(p, result, cfg),
	}
}

// EnergyEfficiency is feed rate over power as a percentage in [0, 100].
// Non-positive power yields 0.
func EnergyEfficiency(feedRate, powerConsumption float64) float64 {
	if powerConsumption <= 0 {
		return 0
	}
	return clamp(feedRate/powerConsumption*100, 0, 100)
}

// ComputeReward combines efficiency, waste and quality into a single scalar
func ComputeReward(p ProcessParameters, r ScoringResult, cfg ThresholdConfig) RewardBreakdown {
	efficiencyScore := r.EnergyEfficiency * cfg.EfficiencyWeight
	wastePenalty := r.WasteAmount * cfg.WastePenaltyFactor
	qualityBonus := (r.OutputQuality / 100) * cfg.QualityBonusFactor * p.FeedRate

	return RewardBreakdown{
		EfficiencyScore: efficiencyScore,
		WastePenalty:    wastePenalty,
		QualityBonus:    qualityBonus,
		TotalReward:     efficiencyScore - wastePenalty + qualityBonus,
	}
}

func temperatureFactor(t float64, cfg ThresholdConfig) float64 {
	switch {
	case t < cfg.TempLowCutoff:
		return 0.90
	case t > cfg.TempHighCutoff:
		return 0.92
	case t >= cfg.OptimalTempLow && t <= cfg.OptimalTempHigh:
		return 1.05
	}
	return 1.0
}

func bathFactor(ratio float64, cfg ThresholdConfig) float64 {
	switch {
	case ratio >= cfg.OptimalBathLow && ratio <= cfg.OptimalBathHigh:
		return 1.03
	case ratio < cfg.BathToleranceLow || ratio > cfg.BathToleranceHigh:
		return 0.95
	}
	return 1.0
}

func simpleQuality(p ProcessParameters, cfg ThresholdConfig) float64 {
	tempCloseness := 1 - math.Abs(p.Temperature-cfg.ReferenceTemperature)/1000
	pressureCloseness := 1 - math.Abs(p.Pressure-cfg.ReferencePressure)/200000
	return clamp(50*(tempCloseness+pressureCloseness), 0, 100)
}

// clamp bounds v to [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round2 rounds to two decimals for display
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Rounded returns a copy with every figure rounded to two decimals
func (o Outcome) Rounded() Outcome {
	out := o
	out.Result.PredictedOutput = Round2(o.Result.PredictedOutput)
	out.Result.EnergyEfficiency = Round2(o.Result.EnergyEfficiency)
	out.Result.OutputQuality = Round2(o.Result.OutputQuality)
	out.Result.WasteAmount = Round2(o.Result.WasteAmount)
	out.Reward = RewardBreakdown{
		EfficiencyScore: Round2(o.Reward.EfficiencyScore),
		WastePenalty:    Round2(o.Reward.WastePenalty),
		QualityBonus:    Round2(o.Reward.QualityBonus),
		TotalReward:     Round2(o.Reward.TotalReward),
	}
	return out
}

// Quantiles returns the q10/q50/q90 band recorded with each prediction
func Quantiles(predicted float64) (q10, q50, q90 float64) {
	return predicted * 0.9, predicted, predicted * 1.1
}

// AuditBlobs returns the state, action and reward as JSON-ready maps
func (o Outcome) AuditBlobs() (state, action, reward map[string]interface{}) {
	p := o.Parameters
	state = map[string]interface{}{
		"production_line":       string(p.ProductionLine),
		"feed_rate":             p.FeedRate,
		"temperature":           p.Temperature,
		"pressure":              p.Pressure,
		"power_consumption":     p.PowerConsumption,
		"bath_ratio":            p.BathRatio,
		"alumina_concentration": p.AluminaConcentration,
		"anode_effect":          p.AnodeEffect,
	}
	action = map[string]interface{}{
		"adjust_feed_rate":   o.Action.AdjustFeedRate,
		"adjust_power":       o.Action.AdjustPower,
		"adjust_temperature": o.Action.AdjustTemperature,
		"adjust_bath_ratio":  o.Action.AdjustBathRatio,
		"reasoning":          o.Action.Reasoning,
	}
	reward = map[string]interface{}{
		"efficiency_score": o.Reward.EfficiencyScore,
		"waste_penalty":    o.Reward.WastePenalty,
		"quality_bonus":    o.Reward.QualityBonus,
		"total_reward":     o.Reward.TotalReward,
	}
	return state, action, reward
}
