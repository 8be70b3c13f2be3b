package quotes

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/domain"
)

func quoteAt(price float64, observed time.Time) domain.MarketQuote {
	return domain.MarketQuote{
		EventID:    "evt1",
		Sport:      domain.SportNBA,
		Market:     domain.MarketMoneyline,
		Selection:  "Celtics",
		Price:      price,
		BookID:     "draftkings",
		ObservedAt: observed,
	}
}

func TestStoreUpsert_LastTimestampWins(t *testing.T) {
	s := NewStore()
	t0 := time.Now()

	prev, applied := s.Upsert(quoteAt(2.5, t0))
	assert.True(t, applied)
	assert.Nil(t, prev)

	prev, applied = s.Upsert(quoteAt(2.2, t0.Add(time.Minute)))
	assert.True(t, applied)
	require.NotNil(t, prev)
	assert.Equal(t, 2.5, prev.Price)

	got, ok := s.Get(quoteAt(0, t0).Key())
	require.True(t, ok)
	assert.Equal(t, 2.2, got.Price)
	assert.Equal(t, 1, s.Len())
}

func TestStoreUpsert_IgnoresStaleAndDuplicate(t *testing.T) {
	s := NewStore()
	t0 := time.Now()

	s.Upsert(quoteAt(2.5, t0))

	// Same timestamp: ignored.
	_, applied := s.Upsert(quoteAt(2.0, t0))
	assert.False(t, applied)

	// Older timestamp: ignored.
	_, applied = s.Upsert(quoteAt(1.8, t0.Add(-time.Minute)))
	assert.False(t, applied)

	got, _ := s.Get(quoteAt(0, t0).Key())
	assert.Equal(t, 2.5, got.Price)
}

func TestStore_IndependentKeys(t *testing.T) {
	s := NewStore()
	now := time.Now()

	for i := 0; i < 10; i++ {
		q := quoteAt(2.0, now)
		q.EventID = fmt.Sprintf("evt%d", i)
		_, applied := s.Upsert(q)
		assert.True(t, applied)
	}
	assert.Equal(t, 10, s.Len())
	assert.Len(t, s.Snapshot(), 10)
}

func TestStore_ConcurrentSameKey(t *testing.T) {
	s := NewStore()
	base := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(quoteAt(float64(i), base.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()

	// The quote with the newest timestamp must win regardless of arrival
	// order.
	got, ok := s.Get(quoteAt(0, base).Key())
	require.True(t, ok)
	assert.Equal(t, float64(99), got.Price)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SnapshotBySport(t *testing.T) {
	s := NewStore()
	now := time.Now()

	nba := quoteAt(2.0, now)
	nhl := quoteAt(1.9, now)
	nhl.EventID = "evt2"
	nhl.Sport = domain.SportNHL

	s.Upsert(nba)
	s.Upsert(nhl)

	got := s.SnapshotBySport(domain.SportNHL)
	require.Len(t, got, 1)
	assert.Equal(t, "evt2", got[0].EventID)
}

func TestStore_MarketOutcomes(t *testing.T) {
	s := NewStore()
	now := time.Now()

	home := quoteAt(1.91, now)
	away := quoteAt(1.91, now)
	away.Selection = "Lakers"
	other := quoteAt(1.87, now)
	other.BookID = "fanduel"

	s.Upsert(home)
	s.Upsert(away)
	s.Upsert(other)

	got := s.MarketOutcomes("evt1", domain.MarketMoneyline, "draftkings")
	assert.Len(t, got, 2)
}
