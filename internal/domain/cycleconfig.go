package domain

import (
	"fmt"
	"time"
)

// LegCountBand is a target range for combination sizes.
type LegCountBand struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Standard bands. The builder accepts any band; these are the configured
// defaults.
var (
	BandSmall  = LegCountBand{Name: "small", Min: 2, Max: 4}
	BandMedium = LegCountBand{Name: "medium", Min: 5, Max: 8}
	BandLarge  = LegCountBand{Name: "large", Min: 9, Max: 15}
)

// CorrelationWeights holds the pairwise dependence heuristics.
type CorrelationWeights struct {
	SameEventSameFamily  float64 `json:"same_event_same_family"`  // 0.6–0.9
	SameEventOtherFamily float64 `json:"same_event_other_family"` // ≈0.3
	SameTeamOtherEvent   float64 `json:"same_team_other_event"`   // ≈0.1
}

// CycleConfig is the single configuration object supplied to an evaluation
// cycle. All evaluator, builder, staking, dedup and monitor thresholds come
// from here so the live path and the backtester run identical logic.
type CycleConfig struct {
	Sports []Sport `json:"sports"`

	// Edge evaluation
	MinEV                  float64       `json:"min_ev"`
	MinConfidence          float64       `json:"min_confidence"`
	StalenessThreshold     time.Duration `json:"staleness_threshold"`
	ConfidenceFloor        float64       `json:"confidence_floor"`         // decay target as quotes age
	UnmodeledConfidenceCap float64       `json:"unmodeled_confidence_cap"` // ceiling when no model probability exists

	// Combination building
	Band                    LegCountBand       `json:"band"`
	MinCombinedProbability  float64            `json:"min_combined_probability"`
	MinCombinedConfidence   float64            `json:"min_combined_confidence"`
	Correlation             CorrelationWeights `json:"correlation"`
	CorrelationPenaltyFloor float64            `json:"correlation_penalty_floor"` // lowest multiplicative penalty

	// Staking
	KellyFractionMultiplier float64 `json:"kelly_fraction_multiplier"`
	MaxStakePercent         float64 `json:"max_stake_percent"` // of bankroll, e.g. 0.05
	DailyBudget             float64 `json:"daily_budget"`
	WeeklyBudget            float64 `json:"weekly_budget"`

	// Movement detection
	SignificanceThreshold float64 `json:"significance_threshold"` // percent, e.g. 10

	// Deduplication
	DedupWindow time.Duration `json:"dedup_window"`
}

// DefaultCycleConfig returns the baseline configuration. Values mirror the
// production defaults; the config package overrides them from environment.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		Sports:                 []Sport{SportNBA, SportNFL, SportMLB, SportNHL, SportUFC, SportBoxing},
		MinEV:                  0.05,
		MinConfidence:          0.6,
		StalenessThreshold:     15 * time.Minute,
		ConfidenceFloor:        0.25,
		UnmodeledConfidenceCap: 0.6,
		Band:                   BandSmall,
		MinCombinedProbability: 0.02,
		MinCombinedConfidence:  0.5,
		Correlation: CorrelationWeights{
			SameEventSameFamily:  0.75,
			SameEventOtherFamily: 0.3,
			SameTeamOtherEvent:   0.1,
		},
		CorrelationPenaltyFloor: 0.25,
		KellyFractionMultiplier: 0.25,
		MaxStakePercent:         0.05,
		DailyBudget:             200,
		WeeklyBudget:            1000,
		SignificanceThreshold:   10,
		DedupWindow:             6 * time.Hour,
	}
}

// MinDistinctBetTypes returns the diversity minimum for a combination of
// the given leg count. Larger combinations must spread across more market
// types.
func (c CycleConfig) MinDistinctBetTypes(legCount int) int {
	switch {
	case legCount <= 3:
		return 1
	case legCount <= 6:
		return 2
	case legCount <= 10:
		return 3
	default:
		return 4
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c CycleConfig) Validate() error {
	if c.Band.Min < 2 {
		return fmt.Errorf("band %q minimum %d below 2", c.Band.Name, c.Band.Min)
	}
	if c.Band.Max < c.Band.Min {
		return fmt.Errorf("band %q max %d below min %d", c.Band.Name, c.Band.Max, c.Band.Min)
	}
	if c.KellyFractionMultiplier <= 0 || c.KellyFractionMultiplier > 1 {
		return fmt.Errorf("kelly fraction multiplier %v outside (0, 1]", c.KellyFractionMultiplier)
	}
	if c.MaxStakePercent <= 0 || c.MaxStakePercent > 1 {
		return fmt.Errorf("max stake percent %v outside (0, 1]", c.MaxStakePercent)
	}
	if c.SignificanceThreshold < 0 {
		return fmt.Errorf("significance threshold %v negative", c.SignificanceThreshold)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("dedup window %v not positive", c.DedupWindow)
	}
	if c.CorrelationPenaltyFloor <= 0 || c.CorrelationPenaltyFloor > 1 {
		return fmt.Errorf("correlation penalty floor %v outside (0, 1]", c.CorrelationPenaltyFloor)
	}
	return nil
}
