// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/oddstack/wagerline/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	LogLevel         string
	Port             int
	DevMode          bool
	OddsAPIKey       string
	OddsAPIBaseURL   string
	OddsFeedWSURL    string // Streaming quote feed; empty disables the stream client
	ModelProviderURL string // Probability model service; empty degrades to implied probability
	CycleSchedule    string // cron spec for the evaluation cycle
	MovementSchedule string // cron spec for the movement scan (polling mode)
	CycleTimeout     time.Duration
	Cycle            domain.CycleConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, resolve to absolute and ensure it exists
	dataDir := getEnv("WAGERLINE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("PORT", 8040),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		OddsAPIKey:       getEnv("ODDS_API_KEY", ""),
		OddsAPIBaseURL:   getEnv("ODDS_API_BASE_URL", "https://api.the-odds-api.com/v4"),
		OddsFeedWSURL:    getEnv("ODDS_FEED_WS_URL", ""),
		ModelProviderURL: getEnv("MODEL_PROVIDER_URL", ""),
		CycleSchedule:    getEnv("CYCLE_SCHEDULE", "0 */15 * * * *"),
		MovementSchedule: getEnv("MOVEMENT_SCHEDULE", "0 */5 * * * *"),
		CycleTimeout:     getEnvAsDuration("CYCLE_TIMEOUT", 2*time.Minute),
		Cycle:            loadCycleConfig(),
	}

	if err := cfg.Cycle.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cycle configuration: %w", err)
	}

	return cfg, nil
}

// loadCycleConfig builds the per-cycle configuration from environment,
// starting from the domain defaults.
func loadCycleConfig() domain.CycleConfig {
	c := domain.DefaultCycleConfig()

	if v := getEnv("DEFAULT_SPORTS", ""); v != "" {
		sports := make([]domain.Sport, 0)
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				sports = append(sports, domain.Sport(strings.ToUpper(s)))
			}
		}
		if len(sports) > 0 {
			c.Sports = sports
		}
	}

	c.MinEV = getEnvAsFloat("MIN_EV", c.MinEV)
	c.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", c.MinConfidence)
	c.StalenessThreshold = getEnvAsDuration("QUOTE_STALENESS_THRESHOLD", c.StalenessThreshold)
	c.MinCombinedProbability = getEnvAsFloat("MIN_COMBINED_PROBABILITY", c.MinCombinedProbability)
	c.MinCombinedConfidence = getEnvAsFloat("MIN_COMBINED_CONFIDENCE", c.MinCombinedConfidence)
	c.KellyFractionMultiplier = getEnvAsFloat("KELLY_FRACTION", c.KellyFractionMultiplier)
	c.MaxStakePercent = getEnvAsFloat("MAX_STAKE_PERCENT", c.MaxStakePercent)
	c.DailyBudget = getEnvAsFloat("DAILY_BUDGET", c.DailyBudget)
	c.WeeklyBudget = getEnvAsFloat("WEEKLY_BUDGET", c.WeeklyBudget)
	c.SignificanceThreshold = getEnvAsFloat("SIGNIFICANCE_THRESHOLD", c.SignificanceThreshold)
	c.DedupWindow = getEnvAsDuration("DEDUP_WINDOW", c.DedupWindow)

	switch getEnv("PARLAY_BAND", "small") {
	case "medium":
		c.Band = domain.BandMedium
	case "large":
		c.Band = domain.BandLarge
	default:
		c.Band = domain.BandSmall
	}

	return c
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
