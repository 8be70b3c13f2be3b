package bankroll

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/database"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "bankroll",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestBalanceAndSpend(t *testing.T) {
	repo := newTestRepo(t)
	t0 := time.Now().Truncate(time.Second)

	require.NoError(t, repo.Record(Entry{Amount: 1000, Kind: KindDeposit, RecordedAt: t0.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Record(Entry{Amount: -40, Kind: KindStake, RecordedAt: t0.Add(-30 * time.Hour)}))
	require.NoError(t, repo.Record(Entry{Amount: -25, Kind: KindStake, RecordedAt: t0.Add(-2 * time.Hour)}))
	require.NoError(t, repo.Record(Entry{Amount: 76, Kind: KindPayout, RecordedAt: t0.Add(-time.Hour)}))

	balance, err := repo.Balance()
	require.NoError(t, err)
	assert.InDelta(t, 1011, balance, 1e-9)

	starting, err := repo.StartingBalance()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, starting)

	// Only the stake inside the cutoff counts, and payouts never reduce
	// spend.
	spentToday, err := repo.SpentSince(t0.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 25.0, spentToday)

	spentWeek, err := repo.SpentSince(t0.Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 65.0, spentWeek)
}

func TestEmptyLedger(t *testing.T) {
	repo := newTestRepo(t)

	balance, err := repo.Balance()
	require.NoError(t, err)
	assert.Zero(t, balance)

	spent, err := repo.SpentSince(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, spent)
}

func TestRecord_RequiresTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	assert.Error(t, repo.Record(Entry{Amount: 10, Kind: KindDeposit}))
}
