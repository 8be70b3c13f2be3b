package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WAGERLINE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8040, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.05, cfg.Cycle.MinEV)
	assert.Equal(t, 0.6, cfg.Cycle.MinConfidence)
	assert.Equal(t, domain.BandSmall, cfg.Cycle.Band)
	assert.Equal(t, 6*time.Hour, cfg.Cycle.DedupWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WAGERLINE_DATA_DIR", t.TempDir())
	t.Setenv("MIN_EV", "0.08")
	t.Setenv("DEFAULT_SPORTS", "nba, nhl")
	t.Setenv("PARLAY_BAND", "medium")
	t.Setenv("DEDUP_WINDOW", "4h")
	t.Setenv("SIGNIFICANCE_THRESHOLD", "12.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.08, cfg.Cycle.MinEV)
	assert.Equal(t, []domain.Sport{domain.SportNBA, domain.SportNHL}, cfg.Cycle.Sports)
	assert.Equal(t, domain.BandMedium, cfg.Cycle.Band)
	assert.Equal(t, 4*time.Hour, cfg.Cycle.DedupWindow)
	assert.Equal(t, 12.5, cfg.Cycle.SignificanceThreshold)
}

func TestLoad_RejectsInvalidCycleConfig(t *testing.T) {
	t.Setenv("WAGERLINE_DATA_DIR", t.TempDir())
	t.Setenv("MAX_STAKE_PERCENT", "1.5")

	_, err := Load()
	assert.Error(t, err)
}
