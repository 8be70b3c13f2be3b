package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		american float64
		decimal  float64
	}{
		{+150, 2.50},
		{+100, 2.00},
		{-110, 1.9091},
		{-200, 1.50},
		{+500, 6.00},
	}

	for _, tt := range tests {
		d, err := AmericanToDecimal(tt.american)
		require.NoError(t, err)
		assert.InDelta(t, tt.decimal, d, 0.0001, "american %+v", tt.american)
	}
}

func TestAmericanToDecimal_RejectsDeadZone(t *testing.T) {
	for _, odds := range []float64{0, 50, -50, 99, -99} {
		_, err := AmericanToDecimal(odds)
		assert.ErrorIs(t, err, ErrBadQuote, "odds %v", odds)
	}
}

func TestAmericanDecimalRoundTrip(t *testing.T) {
	for _, odds := range []float64{-450, -200, -110, -101, 100, 105, 120, 150, 275, 1200} {
		d, err := AmericanToDecimal(odds)
		require.NoError(t, err)
		back, err := DecimalToAmerican(d)
		require.NoError(t, err)
		assert.InDelta(t, odds, back, 0.01, "round trip for %+v", odds)
	}
}

func TestImpliedProbability_InOpenUnitInterval(t *testing.T) {
	for _, d := range []float64{1.01, 1.5, 1.91, 2.0, 3.5, 12.0, 500.0} {
		p, err := ImpliedProbability(d)
		require.NoError(t, err)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
}

func TestImpliedProbability_RejectsInvalidPrice(t *testing.T) {
	for _, d := range []float64{1.0, 0.5, 0, -2} {
		_, err := ImpliedProbability(d)
		assert.ErrorIs(t, err, ErrBadQuote)
	}
}

func TestRemoveVig(t *testing.T) {
	// Standard -110 / -110 market: each side implies 0.5238, sum 1.0476.
	p, err := ImpliedProbability(1.9091)
	require.NoError(t, err)

	fair, err := RemoveVig([]float64{p, p})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, fair[0], 0.0001)
	assert.InDelta(t, 0.5, fair[1], 0.0001)
	assert.InDelta(t, 1.0, fair[0]+fair[1], 1e-9)
}

func TestRemoveVig_PreservesOrdering(t *testing.T) {
	fair, err := RemoveVig([]float64{0.60, 0.45})
	require.NoError(t, err)
	assert.Greater(t, fair[0], fair[1])
	assert.InDelta(t, 1.0, fair[0]+fair[1], 1e-9)
}

func TestRemoveVig_RequiresFullMarket(t *testing.T) {
	_, err := RemoveVig([]float64{0.55})
	assert.ErrorIs(t, err, ErrBadQuote)
}

func TestOverround(t *testing.T) {
	assert.InDelta(t, 0.0476, Overround([]float64{0.5238, 0.5238}), 0.0001)
	assert.InDelta(t, 0.0, Overround([]float64{0.5, 0.5}), 1e-9)
}

func TestExpectedValue_IncreasesWithPrice(t *testing.T) {
	// Holding model probability fixed, EV must be strictly increasing in
	// price.
	const p = 0.55
	prev := ExpectedValue(p, 1.10)
	for _, d := range []float64{1.25, 1.5, 1.91, 2.2, 3.0, 5.0} {
		ev := ExpectedValue(p, d)
		assert.Greater(t, ev, prev, "EV at price %v", d)
		prev = ev
	}
}

func TestExpectedValue_KnownValues(t *testing.T) {
	// p=0.55 at 1.91: 0.55*0.91 - 0.45 = 0.0505
	assert.InDelta(t, 0.0505, ExpectedValue(0.55, 1.91), 0.0001)
	// Fair coin at evens: zero EV.
	assert.InDelta(t, 0.0, ExpectedValue(0.5, 2.0), 1e-9)
	// Underwater bet.
	assert.Less(t, ExpectedValue(0.40, 2.0), 0.0)
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, -12.0, PercentChange(2.50, 2.20), 0.0001)
	assert.InDelta(t, 10.0, PercentChange(2.0, 2.2), 0.0001)
	assert.Equal(t, 0.0, PercentChange(0, 2.0))
}
