package scoring_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeThresholds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadThresholds(t *testing.T) {
	t.Run("should overlay a partial file on the defaults", func(t *testing.T) {
		path := writeThresholds(t, "strategy: Simple\nhigh_waste_threshold: 75\n")

		cfg, err := scoring.LoadThresholds(path)
		require.NoError(t, err)

		want := scoring.DefaultThresholds()
		want.Strategy = scoring.StrategySimple
		want.HighWasteThreshold = 75
		assert.Equal(t, want, cfg)
	})

	t.Run("should reject an unknown strategy", func(t *testing.T) {
		path := writeThresholds(t, "strategy: neural\n")
		_, err := scoring.LoadThresholds(path)
		assert.Error(t, err)
	})

	t.Run("should reject inverted bands", func(t *testing.T) {
		path := writeThresholds(t, "optimal_temp_low: 980\noptimal_temp_high: 950\n")
		_, err := scoring.LoadThresholds(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "optimal temperature band")
	})

	t.Run("should report a missing file", func(t *testing.T) {
		_, err := scoring.LoadThresholds(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestThresholdValidate(t *testing.T) {
	assert.NoError(t, scoring.DefaultThresholds().Validate())

	mutations := map[string]func(*scoring.ThresholdConfig){
		"nan rate":        func(c *scoring.ThresholdConfig) { c.BaseConversionRate = math.NaN() },
		"infinite cap":    func(c *scoring.ThresholdConfig) { c.SavingsCap = math.Inf(1) },
		"waste inverted":  func(c *scoring.ThresholdConfig) { c.ModerateWasteThreshold = 60 },
		"bath inverted":   func(c *scoring.ThresholdConfig) { c.BathToleranceLow = 2 },
		"negative weight": func(c *scoring.ThresholdConfig) { c.EfficiencyWeight = -1 },
		"negative cap":    func(c *scoring.ThresholdConfig) { c.SavingsCap = -1 },
		"empty strategy":  func(c *scoring.ThresholdConfig) { c.Strategy = "" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := scoring.DefaultThresholds()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestThresholdValidateReportsFirstField(t *testing.T) {
	cfg := scoring.DefaultThresholds()
	cfg.SavingsCap = math.NaN()
	cfg.ReferencePressure = math.Inf(-1)
	cfg.BaseConversionRate = math.NaN()

	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "base_conversion_rate must be finite", err.Error())
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := scoring.ParseStrategy(" CONTEXTUAL ")
	require.NoError(t, err)
	assert.Equal(t, scoring.StrategyContextual, s)
	assert.Equal(t, "v2.0.0-contextual", s.ModelVersion())

	s, err = scoring.ParseStrategy("simple")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0-simple", s.ModelVersion())

	_, err = scoring.ParseStrategy("linear")
	assert.Error(t, err)
}

func TestValidateParameters(t *testing.T) {
	assert.NoError(t, scoring.ValidateParameters(nominal()))

	cases := map[string]func(*scoring.ProcessParameters){
		"unknown line":      func(p *scoring.ProcessParameters) { p.ProductionLine = "LINE_Z" },
		"zero feed":         func(p *scoring.ProcessParameters) { p.FeedRate = 0 },
		"negative power":    func(p *scoring.ProcessParameters) { p.PowerConsumption = -3 },
		"negative anode":    func(p *scoring.ProcessParameters) { p.AnodeEffect = -0.1 },
		"negative bath":     func(p *scoring.ProcessParameters) { p.BathRatio = -1 },
		"alumina above 100": func(p *scoring.ProcessParameters) { p.AluminaConcentration = 101 },
		"nan temperature":   func(p *scoring.ProcessParameters) { p.Temperature = math.NaN() },
		"infinite pressure": func(p *scoring.ProcessParameters) { p.Pressure = math.Inf(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := nominal()
			mutate(&p)
			err := scoring.ValidateParameters(p)
			assert.ErrorIs(t, err, scoring.ErrInvalidParameter)
		})
	}

	assert.True(t, scoring.LineB.Valid())
	assert.Equal(t, "Production Line C", scoring.LineC.Label())
}
