package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 100, cfg.RateLimitRPS)
		assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
		assert.Empty(t, cfg.NatsURL)
		assert.Empty(t, cfg.AllowedOrigins)
		assert.False(t, cfg.Debug)
	})

	t.Run("should build a fresh config on every call", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		first, err := Load()
		require.NoError(t, err)

		t.Setenv("PORT", "9090")
		second, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", first.Port)
		assert.Equal(t, "9090", second.Port)
	})

	t.Run("should split allowed origins", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	})

	t.Run("should allow any origin in debug mode", func(t *testing.T) {
		t.Setenv("DEBUG", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
		assert.NotEmpty(t, cfg.JWTSecret)
	})

	t.Run("should require a jwt secret outside debug", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	malformed := map[string]string{
		"RATE_LIMIT_RPS":    "fast",
		"DEBUG":             "maybe",
		"MINIO_USE_SSL":     "yes please",
		"ACCESS_TOKEN_TTL":  "15",
		"REFRESH_TOKEN_TTL": "-1h",
		"SCORING_STRATEGY":  "neural",
		"ENCRYPTION_KEY":    "short",
	}
	for key, value := range malformed {
		t.Run("should reject malformed "+key, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}

	t.Run("should reject a non-positive rate limit", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("RATE_LIMIT_RPS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestThresholds(t *testing.T) {
	t.Run("should return defaults without a file", func(t *testing.T) {
		cfg := &Config{}
		th, err := cfg.Thresholds()
		require.NoError(t, err)
		assert.Equal(t, scoring.DefaultThresholds(), th)
	})

	t.Run("should let the strategy override the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scoring.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategy: contextual\nmoderate_waste_threshold: 15\n"), 0o600))

		cfg := &Config{ScoringConfig: path, ScoringStrategy: "simple"}
		th, err := cfg.Thresholds()
		require.NoError(t, err)
		assert.Equal(t, scoring.StrategySimple, th.Strategy)
		assert.Equal(t, 15.0, th.ModerateWasteThreshold)
	})

	t.Run("should surface file errors", func(t *testing.T) {
		cfg := &Config{ScoringConfig: filepath.Join(t.TempDir(), "missing.yaml")}
		_, err := cfg.Thresholds()
		assert.Error(t, err)
	})
}
