package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter marks input rejected before scoring
var ErrInvalidParameter = errors.New("invalid parameter")

// ValidateParameters applies the business rules callers enforce before
// calling Score. Score itself accepts anything.
func ValidateParameters(p ProcessParameters) error {
	if !p.ProductionLine.Valid() {
		return fmt.Errorf("%w: production_line %q is not one of LINE_A, LINE_B, LINE_C", ErrInvalidParameter, p.ProductionLine)
	}

	fields := []struct {
		name string
		v    float64
	}{
		{"feed_rate", p.FeedRate},
		{"temperature", p.Temperature},
		{"pressure", p.Pressure},
		{"power_consumption", p.PowerConsumption},
		{"anode_effect", p.AnodeEffect},
		{"bath_ratio", p.BathRatio},
		{"alumina_concentration", p.AluminaConcentration},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidParameter, f.name)
		}
	}

	if p.FeedRate <= 0 {
		return fmt.Errorf("%w: feed_rate must be greater than 0", ErrInvalidParameter)
	}
	if p.PowerConsumption <= 0 {
		return fmt.Errorf("%w: power_consumption must be greater than 0", ErrInvalidParameter)
	}
	if p.AnodeEffect < 0 {
		return fmt.Errorf("%w: anode_effect must not be negative", ErrInvalidParameter)
	}
	if p.BathRatio < 0 {
		return fmt.Errorf("%w: bath_ratio must not be negative", ErrInvalidParameter)
	}
	if p.AluminaConcentration < 0 || p.AluminaConcentration > 100 {
		return fmt.Errorf("%w: alumina_concentration must be between 0 and 100", ErrInvalidParameter)
	}
	return nil
}
