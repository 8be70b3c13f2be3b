// Package correlation estimates pairwise dependence between legs and turns
// it into a multiplicative probability penalty.
package correlation

import (
	"github.com/oddstack/wagerline/internal/domain"
)

// Model scores how far a set of legs is from independence. Scores are
// heuristic: legs settling on the same event are strongly linked when they
// share a market family, weakly linked otherwise, and legs riding on the
// same team across events carry a small residual link.
type Model struct {
	weights domain.CorrelationWeights
	floor   float64
}

// New creates a model from the configured weights and penalty floor.
func New(cfg domain.CycleConfig) *Model {
	return &Model{weights: cfg.Correlation, floor: cfg.CorrelationPenaltyFloor}
}

// Pairwise returns the correlation estimate for two legs, in [0, 1] and
// symmetric in its arguments.
func (m *Model) Pairwise(a, b domain.Leg) float64 {
	if a.EventID == b.EventID {
		if a.Market.Family() == b.Market.Family() {
			return m.weights.SameEventSameFamily
		}
		return m.weights.SameEventOtherFamily
	}
	if a.Team != "" && a.Team == b.Team {
		return m.weights.SameTeamOtherEvent
	}
	return 0
}

// MaxAgainst returns the strongest pairwise correlation between a candidate
// leg and any already-selected leg. The builder uses this for tie-breaking.
func (m *Model) MaxAgainst(candidate domain.Leg, selected []domain.Leg) float64 {
	var max float64
	for _, s := range selected {
		if c := m.Pairwise(candidate, s); c > max {
			max = c
		}
	}
	return max
}

// Penalty returns the multiplicative factor applied to the raw probability
// product of a combination. Each pair discounts the product by its
// correlation estimate; the result is floored so a combination's probability
// never collapses to zero, and capped at 1 so it never exceeds the raw
// product.
func (m *Model) Penalty(legs []domain.Leg) float64 {
	penalty := 1.0
	for i := 0; i < len(legs); i++ {
		for j := i + 1; j < len(legs); j++ {
			penalty *= 1.0 - m.Pairwise(legs[i], legs[j])
		}
	}
	if penalty < m.floor {
		penalty = m.floor
	}
	if penalty > 1 {
		penalty = 1
	}
	return penalty
}
