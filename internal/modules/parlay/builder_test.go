package parlay

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/modules/correlation"
)

func newBuilder(cfg domain.CycleConfig) *Builder {
	return New(cfg, correlation.New(cfg), zerolog.Nop())
}

// candidate builds a qualifying value leg. Price is derived so the leg's EV
// matches exactly: EV = p*price - 1.
func candidate(eventID string, market domain.MarketType, p, ev, confidence float64) domain.Leg {
	price := (1.0 + ev) / p
	return domain.Leg{
		EventID:          eventID,
		Sport:            domain.SportNBA,
		Market:           market,
		Selection:        "sel-" + eventID + "-" + string(market),
		Price:            price,
		BookID:           "draftkings",
		EventStartAt:     time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		ModelProbability: p,
		ModelBacked:      true,
		EV:               ev,
		Confidence:       confidence,
		Tier:             domain.TierForConfidence(confidence),
		ValueScore:       0.6*ev + 0.4*confidence,
	}
}

func TestBuild_TwoQualifyingLegs(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	legs := []domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.55, 0.06, 0.65),
		candidate("evt2", domain.MarketTotal, 0.55, 0.06, 0.65),
	}

	combo, err := b.Build(legs)
	require.NoError(t, err)

	assert.Equal(t, 2, combo.LegCount())
	assert.Equal(t, 2, combo.BetTypeCount())
	assert.Equal(t, 2, combo.EventCount())
	assert.InDelta(t, 0.55*0.55, combo.RawProbability, 1e-9)
	assert.Equal(t, 1.0, combo.CorrelationPenalty)
	assert.InDelta(t, 0.65, combo.CombinedConfidence, 1e-9)
	assert.InDelta(t, 0.12, combo.TotalEV, 1e-9)
}

func TestBuild_InsufficientCandidates(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	_, err := b.Build([]domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.55, 0.06, 0.7),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCandidates)

	_, err = b.Build(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientCandidates)
}

func TestBuild_NoDuplicateIdentities(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	// The same (event, market, selection) at two books must appear at most
	// once.
	dup := candidate("evt1", domain.MarketMoneyline, 0.6, 0.08, 0.7)
	dupOtherBook := dup
	dupOtherBook.BookID = "fanduel"
	dupOtherBook.Price += 0.02

	legs := []domain.Leg{
		dup,
		dupOtherBook,
		candidate("evt2", domain.MarketTotal, 0.6, 0.07, 0.7),
		candidate("evt3", domain.MarketSpread, 0.6, 0.07, 0.7),
	}

	combo, err := b.Build(legs)
	require.NoError(t, err)

	seen := make(map[domain.IdentityKey]int)
	for _, l := range combo.Legs {
		seen[l.Identity()]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "identity %s appears %d times", id, n)
	}
}

func TestBuild_RespectsBandUpperBound(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	markets := []domain.MarketType{
		domain.MarketMoneyline, domain.MarketTotal, domain.MarketSpread,
		domain.MarketProp, domain.MarketTeamTotal, domain.MarketHalf,
	}
	var legs []domain.Leg
	for i, m := range markets {
		legs = append(legs, candidate(fmt.Sprintf("evt%d", i), m, 0.65, 0.07, 0.7))
	}

	combo, err := b.Build(legs)
	require.NoError(t, err)
	assert.Equal(t, domain.BandSmall.Max, combo.LegCount())
}

func TestBuild_DiversityMilestoneStopsSingleMarketGrowth(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	// Four moneylines on four events: a 4-leg build would need two distinct
	// bet types, so growth stops at three legs.
	var legs []domain.Leg
	for i := 0; i < 4; i++ {
		legs = append(legs, candidate(fmt.Sprintf("evt%d", i), domain.MarketMoneyline, 0.65, 0.07, 0.7))
	}

	combo, err := b.Build(legs)
	require.NoError(t, err)
	assert.Equal(t, 3, combo.LegCount())
	assert.Equal(t, 1, combo.BetTypeCount())
}

func TestBuild_ProbabilityFloorRejectsLongshots(t *testing.T) {
	cfg := domain.DefaultCycleConfig()
	cfg.MinCombinedProbability = 0.3
	b := newBuilder(cfg)

	legs := []domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.7, 0.08, 0.7),
		candidate("evt2", domain.MarketTotal, 0.7, 0.07, 0.7),
		// Adding this longshot would drop the combined probability to
		// 0.49*0.2 < 0.3, so it is rejected and the build stays two legs.
		candidate("evt3", domain.MarketSpread, 0.2, 0.2, 0.7),
	}

	combo, err := b.Build(legs)
	require.NoError(t, err)
	assert.Equal(t, 2, combo.LegCount())
	for _, l := range combo.Legs {
		assert.NotEqual(t, "evt3", l.EventID)
	}
}

func TestBuild_CorrelatedLegsPenalized(t *testing.T) {
	cfg := domain.DefaultCycleConfig()
	b := newBuilder(cfg)

	sameEvent := []domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.65, 0.07, 0.7),
		candidate("evt1", domain.MarketTotal, 0.65, 0.07, 0.7),
	}
	independent := []domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.65, 0.07, 0.7),
		candidate("evt2", domain.MarketTotal, 0.65, 0.07, 0.7),
	}

	correlated, err := b.Build(sameEvent)
	require.NoError(t, err)
	uncorrelated, err := b.Build(independent)
	require.NoError(t, err)

	assert.Less(t, correlated.CorrelationPenalty, 1.0)
	assert.Less(t, correlated.CombinedProbability, uncorrelated.CombinedProbability)
	assert.Equal(t, correlated.RawProbability, uncorrelated.RawProbability)
}

func TestBuild_RejectsLowCombinedConfidence(t *testing.T) {
	b := newBuilder(domain.DefaultCycleConfig())

	legs := []domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.6, 0.06, 0.4),
		candidate("evt2", domain.MarketTotal, 0.6, 0.06, 0.4),
	}

	_, err := b.Build(legs)
	assert.ErrorIs(t, err, domain.ErrInsufficientCandidates)
}

func TestBuild_QualityScoreRewardsDiversity(t *testing.T) {
	diverse := domain.Combination{
		Legs: []domain.Leg{
			candidate("evt1", domain.MarketMoneyline, 0.65, 0.06, 0.7),
			candidate("evt2", domain.MarketTotal, 0.65, 0.06, 0.7),
		},
		CombinedConfidence: 0.7,
		TotalEV:            0.12,
	}
	narrow := domain.Combination{
		Legs: []domain.Leg{
			candidate("evt1", domain.MarketMoneyline, 0.65, 0.06, 0.7),
			candidate("evt2", domain.MarketMoneyline, 0.65, 0.06, 0.7),
		},
		CombinedConfidence: 0.7,
		TotalEV:            0.12,
	}

	assert.Greater(t, qualityScore(diverse), qualityScore(narrow))
}

func TestGroupBySport(t *testing.T) {
	nhl := candidate("evt9", domain.MarketMoneyline, 0.6, 0.06, 0.7)
	nhl.Sport = domain.SportNHL

	groups := GroupBySport([]domain.Leg{
		candidate("evt1", domain.MarketMoneyline, 0.6, 0.06, 0.7),
		candidate("evt2", domain.MarketTotal, 0.6, 0.06, 0.7),
		nhl,
	})

	assert.Len(t, groups[domain.SportNBA], 2)
	assert.Len(t, groups[domain.SportNHL], 1)
}
