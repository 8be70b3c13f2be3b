package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/domain"
)

func sampleLeg() domain.Leg {
	return domain.Leg{
		EventID:          "evt1",
		Sport:            domain.SportNBA,
		Market:           domain.MarketMoneyline,
		Selection:        "Celtics",
		Price:            2.5,
		BookID:           "draftkings",
		ModelProbability: 0.45,
		EV:               0.125,
		Confidence:       0.7,
		Tier:             domain.TierMedium,
	}
}

func TestSinglePayload(t *testing.T) {
	stake := domain.StakeRecommendation{
		BankrollAtDecision: 1000,
		RecommendedPercent: 0.02,
		RecommendedAmount:  20,
	}
	p := SinglePayload(sampleLeg(), stake, time.Now())

	assert.Equal(t, "single", p.Kind)
	require.Len(t, p.Legs, 1)
	assert.Nil(t, p.Combination)
	assert.Contains(t, p.Rationale, "12.5% EV")
}

func TestParlayPayload(t *testing.T) {
	other := sampleLeg()
	other.EventID = "evt2"
	other.Market = domain.MarketTotal
	c := domain.Combination{
		Sport:               domain.SportNBA,
		Legs:                []domain.Leg{sampleLeg(), other},
		CombinedPrice:       6.25,
		CombinedProbability: 0.2,
		QualityScore:        0.91,
	}

	p := ParlayPayload(c, domain.StakeRecommendation{}, time.Now())

	assert.Equal(t, "parlay", p.Kind)
	require.NotNil(t, p.Combination)
	assert.Contains(t, p.Rationale, "2 legs")
	assert.Contains(t, p.Rationale, "2 bet types")
}

func TestFormatText(t *testing.T) {
	stake := domain.StakeRecommendation{
		BankrollAtDecision: 1000,
		RecommendedPercent: 0.02,
		RecommendedAmount:  20,
	}
	text := FormatText(SinglePayload(sampleLeg(), stake, time.Now()))

	// 2.50 decimal renders as +150.
	assert.Contains(t, text, "+150")
	assert.Contains(t, text, "$20.00")
	assert.Contains(t, text, "Celtics")
}

func TestFormatText_NoBet(t *testing.T) {
	text := FormatText(SinglePayload(sampleLeg(), domain.StakeRecommendation{}, time.Now()))
	assert.Contains(t, text, "no bet")
}

func TestConsoleSend(t *testing.T) {
	c := NewConsole(zerolog.Nop())
	assert.Equal(t, "console", c.Name())
	assert.NoError(t, c.Send(context.Background(), SinglePayload(sampleLeg(), domain.StakeRecommendation{}, time.Now())))
}
