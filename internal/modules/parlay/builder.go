// Package parlay builds diversified multi-leg combinations from value legs.
package parlay

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/modules/correlation"
)

// Score bonuses for novelty while growing a combination. A leg that opens an
// unseen market type or event is worth slightly more than its raw value
// score, which is what drives diversity without a hard constraint solver.
const (
	newMarketBonus = 0.05
	newEventBonus  = 0.03
	scoreEpsilon   = 1e-9
)

// Up to this many distinct seed legs are tried; each seed grows its own
// candidate combination and the best by quality score wins.
const maxSeeds = 5

// Builder assembles one combination per grouping of candidate legs.
type Builder struct {
	cfg  domain.CycleConfig
	corr *correlation.Model
	log  zerolog.Logger
}

// New creates a builder.
func New(cfg domain.CycleConfig, corr *correlation.Model, log zerolog.Logger) *Builder {
	return &Builder{
		cfg:  cfg,
		corr: corr,
		log:  log.With().Str("component", "parlay_builder").Logger(),
	}
}

// GroupBySport splits legs into per-sport groupings. Each grouping is built
// independently; a grouping that cannot fill its band does not affect the
// others.
func GroupBySport(legs []domain.Leg) map[domain.Sport][]domain.Leg {
	out := make(map[domain.Sport][]domain.Leg)
	for _, l := range legs {
		out[l.Sport] = append(out[l.Sport], l)
	}
	return out
}

// Build selects the single best combination from one grouping's candidates.
//
// Candidates are ranked by value score and grown greedily from several seed
// legs: at each step the highest-scoring remaining leg is added, with a
// bonus for introducing an unseen market type or event, unless it would
// duplicate an identity or drop the combined probability below the floor.
// Ties prefer an unseen bet type, then lower correlation with the selected
// legs, then the earliest event start. Candidate combinations are collapsed
// by signature and the best quality score wins.
//
// Returns ErrInsufficientCandidates when the grouping cannot produce a
// combination that fills the band and clears the combined minimums. That is
// a normal empty outcome for the grouping, not a cycle failure.
func (b *Builder) Build(candidates []domain.Leg) (domain.Combination, error) {
	if len(candidates) < b.cfg.Band.Min {
		return domain.Combination{}, fmt.Errorf("%w: %d legs for band %q (min %d)",
			domain.ErrInsufficientCandidates, len(candidates), b.cfg.Band.Name, b.cfg.Band.Min)
	}

	ranked := make([]domain.Leg, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if math.Abs(ranked[i].ValueScore-ranked[j].ValueScore) > scoreEpsilon {
			return ranked[i].ValueScore > ranked[j].ValueScore
		}
		return ranked[i].EventStartAt.Before(ranked[j].EventStartAt)
	})

	seeds := maxSeeds
	if seeds > len(ranked) {
		seeds = len(ranked)
	}

	seen := make(map[string]struct{}, seeds)
	var best domain.Combination
	found := false
	for i := 0; i < seeds; i++ {
		combo, ok := b.grow(ranked, i)
		if !ok {
			continue
		}
		sig := combo.Signature()
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		if !found || combo.QualityScore > best.QualityScore {
			best = combo
			found = true
		}
	}

	if !found {
		return domain.Combination{}, fmt.Errorf("%w: no combination cleared the combined minimums for band %q",
			domain.ErrInsufficientCandidates, b.cfg.Band.Name)
	}
	return best, nil
}

// grow builds one candidate combination starting from ranked[seed].
func (b *Builder) grow(ranked []domain.Leg, seed int) (domain.Combination, bool) {
	selected := []domain.Leg{ranked[seed]}
	used := map[domain.IdentityKey]struct{}{ranked[seed].Identity(): {}}

	for len(selected) < b.cfg.Band.Max {
		next, ok := b.pickNext(ranked, selected, used)
		if !ok {
			break
		}
		selected = append(selected, next)
		used[next.Identity()] = struct{}{}
	}

	return b.finalize(selected)
}

// pickNext selects the best admissible next leg, or reports none remain.
func (b *Builder) pickNext(ranked []domain.Leg, selected []domain.Leg, used map[domain.IdentityKey]struct{}) (domain.Leg, bool) {
	markets := make(map[domain.MarketType]struct{}, len(selected))
	events := make(map[string]struct{}, len(selected))
	for _, l := range selected {
		markets[l.Market] = struct{}{}
		events[l.EventID] = struct{}{}
	}

	var (
		best      domain.Leg
		bestScore = math.Inf(-1)
		bestNew   bool
		bestCorr  float64
		found     bool
	)
	for _, cand := range ranked {
		if _, dup := used[cand.Identity()]; dup {
			continue
		}
		if !b.probabilityHolds(selected, cand) {
			continue
		}

		_, marketSeen := markets[cand.Market]
		_, eventSeen := events[cand.EventID]

		// Diversity milestone: the grown selection must still meet the
		// distinct-bet-type minimum for its new size.
		types := len(markets)
		if !marketSeen {
			types++
		}
		if types < b.cfg.MinDistinctBetTypes(len(selected)+1) {
			continue
		}

		score := cand.ValueScore
		if !marketSeen {
			score += newMarketBonus
		}
		if !eventSeen {
			score += newEventBonus
		}
		corr := b.corr.MaxAgainst(cand, selected)

		if !found || b.better(score, !marketSeen, corr, cand, bestScore, bestNew, bestCorr, best) {
			best, bestScore, bestNew, bestCorr = cand, score, !marketSeen, corr
			found = true
		}
	}
	return best, found
}

// better applies the tie-break chain: score, then unseen bet type, then
// lower correlation against the selected legs, then earliest event start.
func (b *Builder) better(score float64, newMarket bool, corr float64, cand domain.Leg,
	bestScore float64, bestNew bool, bestCorr float64, best domain.Leg) bool {
	if math.Abs(score-bestScore) > scoreEpsilon {
		return score > bestScore
	}
	if newMarket != bestNew {
		return newMarket
	}
	if math.Abs(corr-bestCorr) > scoreEpsilon {
		return corr < bestCorr
	}
	return cand.EventStartAt.Before(best.EventStartAt)
}

// probabilityHolds reports whether adding cand keeps the penalized combined
// probability at or above the configured floor.
func (b *Builder) probabilityHolds(selected []domain.Leg, cand domain.Leg) bool {
	legs := append(append([]domain.Leg{}, selected...), cand)
	raw := 1.0
	for _, l := range legs {
		raw *= l.ModelProbability
	}
	return raw*b.corr.Penalty(legs) >= b.cfg.MinCombinedProbability
}

// finalize computes the combination's aggregates and checks the band,
// diversity and combined minimums.
func (b *Builder) finalize(legs []domain.Leg) (domain.Combination, bool) {
	if len(legs) < b.cfg.Band.Min || len(legs) > b.cfg.Band.Max {
		return domain.Combination{}, false
	}

	combo := domain.Combination{
		Sport: legs[0].Sport,
		Legs:  legs,
	}

	price, raw, confSum, evSum := 1.0, 1.0, 0.0, 0.0
	for _, l := range legs {
		price *= l.Price
		raw *= l.ModelProbability
		confSum += l.Confidence
		evSum += l.EV
	}
	combo.CombinedPrice = price
	combo.RawProbability = raw
	combo.CorrelationPenalty = b.corr.Penalty(legs)
	combo.CombinedProbability = raw * combo.CorrelationPenalty
	combo.CombinedConfidence = confSum / float64(len(legs))
	combo.TotalEV = evSum
	combo.QualityScore = qualityScore(combo)

	if combo.BetTypeCount() < b.cfg.MinDistinctBetTypes(len(legs)) {
		return domain.Combination{}, false
	}
	if combo.CombinedConfidence < b.cfg.MinCombinedConfidence {
		return domain.Combination{}, false
	}
	if combo.CombinedProbability < b.cfg.MinCombinedProbability {
		return domain.Combination{}, false
	}
	return combo, true
}

// qualityScore rewards confident, diversified, high-EV combinations:
// confidence scaled by a variety bonus per extra bet type, a
// diversification bonus per distinct event, and the average leg EV.
func qualityScore(c domain.Combination) float64 {
	variety := 1.0 + 0.1*float64(c.BetTypeCount()-1)
	diversification := 1.0 + 0.1*float64(c.EventCount())/float64(c.LegCount())
	return c.CombinedConfidence * variety * diversification * (1.0 + 10.0*c.AvgEV())
}
