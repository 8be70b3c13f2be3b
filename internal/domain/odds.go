package domain

import (
	"fmt"
	"math"
)

// Odds conversions. Decimal odds are the internal representation; American
// odds appear at the feed boundary and in notifications.

// AmericanToDecimal converts American odds to decimal odds.
// +150 -> 2.50, -200 -> 1.50.
func AmericanToDecimal(american float64) (float64, error) {
	switch {
	case american >= 100:
		return american/100.0 + 1.0, nil
	case american <= -100:
		return 100.0/math.Abs(american) + 1.0, nil
	default:
		return 0, fmt.Errorf("%w: american odds %v inside (-100, 100)", ErrBadQuote, american)
	}
}

// DecimalToAmerican converts decimal odds to American odds.
// 2.50 -> +150, 1.50 -> -200.
func DecimalToAmerican(decimal float64) (float64, error) {
	if decimal <= 1 {
		return 0, fmt.Errorf("%w: decimal odds %v not above 1", ErrBadQuote, decimal)
	}
	if decimal >= 2 {
		return (decimal - 1.0) * 100.0, nil
	}
	return -100.0 / (decimal - 1.0), nil
}

// ImpliedProbability returns the probability implied by decimal odds.
// Always in (0, 1) for decimal > 1.
func ImpliedProbability(decimal float64) (float64, error) {
	if decimal <= 1 {
		return 0, fmt.Errorf("%w: decimal odds %v not above 1", ErrBadQuote, decimal)
	}
	return 1.0 / decimal, nil
}

// ImpliedProbabilityAmerican returns the probability implied by American odds.
// +O -> 100/(O+100), -O -> O/(O+100).
func ImpliedProbabilityAmerican(american float64) (float64, error) {
	d, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return ImpliedProbability(d)
}

// RemoveVig normalizes the implied probabilities of a market's mutually
// exclusive outcomes so they sum to 1. Input and output are parallel slices.
// Requires at least two outcomes; a one-sided market has no overround to
// strip.
func RemoveVig(implied []float64) ([]float64, error) {
	if len(implied) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 outcomes to remove vig, got %d", ErrBadQuote, len(implied))
	}
	var sum float64
	for _, p := range implied {
		if p <= 0 || p >= 1 {
			return nil, fmt.Errorf("%w: implied probability %v outside (0, 1)", ErrBadQuote, p)
		}
		sum += p
	}
	out := make([]float64, len(implied))
	for i, p := range implied {
		out[i] = p / sum
	}
	return out, nil
}

// Overround returns the bookmaker margin of a market: the amount by which
// the implied probabilities sum above 1. Zero for a fair market.
func Overround(implied []float64) float64 {
	var sum float64
	for _, p := range implied {
		sum += p
	}
	return sum - 1.0
}

// ExpectedValue returns expected profit per unit stake given a win
// probability and decimal odds: p*(price-1) - (1-p).
func ExpectedValue(winProbability, decimal float64) float64 {
	return winProbability*(decimal-1.0) - (1.0 - winProbability)
}

// PercentChange returns the signed percent change between two decimal
// prices, e.g. 2.50 -> 2.20 yields -12.
func PercentChange(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / before * 100.0
}
