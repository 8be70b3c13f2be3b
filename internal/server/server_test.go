package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/clients/modelprob"
	"github.com/oddstack/wagerline/internal/cycle"
	"github.com/oddstack/wagerline/internal/database"
	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/events"
	"github.com/oddstack/wagerline/internal/modules/backtest"
	"github.com/oddstack/wagerline/internal/modules/bankroll"
	"github.com/oddstack/wagerline/internal/modules/correlation"
	"github.com/oddstack/wagerline/internal/modules/dedup"
	"github.com/oddstack/wagerline/internal/modules/edge"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/parlay"
	"github.com/oddstack/wagerline/internal/modules/quotes"
	"github.com/oddstack/wagerline/internal/modules/staking"
)

type staticFeed struct {
	quotes []domain.MarketQuote
}

func (f *staticFeed) FetchQuotes(_ context.Context, sport domain.Sport) ([]domain.MarketQuote, error) {
	var out []domain.MarketQuote
	for _, q := range f.quotes {
		if q.Sport == sport {
			out = append(out, q)
		}
	}
	return out, nil
}

type testEnv struct {
	server   *Server
	history  *quotes.HistoryRepository
	bankroll *bankroll.Repository
	monitor  *movement.Monitor
}

func newTestServer(t *testing.T, feedQuotes []domain.MarketQuote) *testEnv {
	t.Helper()

	cfg := domain.DefaultCycleConfig()
	cfg.Sports = []domain.Sport{domain.SportNBA}
	log := zerolog.Nop()
	em := events.NewManager(log)

	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	history, err := quotes.NewHistoryRepository(db.Conn(), log)
	require.NoError(t, err)
	recRepo, err := dedup.NewRepository(db.Conn(), log)
	require.NoError(t, err)
	bankrollRepo, err := bankroll.NewRepository(db.Conn(), log)
	require.NoError(t, err)

	store := quotes.NewStore()
	evaluator := edge.New(cfg, log)
	engine := staking.New(cfg, log)
	monitor := movement.NewMonitor(cfg, em, log)
	runner := backtest.NewRunner(cfg, evaluator, engine, log)
	tracker := dedup.NewTracker(recRepo, cfg.DedupWindow, log)

	svc := cycle.NewService(cfg, 30*time.Second, cycle.Deps{
		Store:     store,
		History:   history,
		Feed:      &staticFeed{quotes: feedQuotes},
		Models:    &modelprob.Static{},
		Evaluator: evaluator,
		Builder:   parlay.New(cfg, correlation.New(cfg), log),
		Engine:    engine,
		Tracker:   tracker,
		Monitor:   monitor,
		Ledger:    bankrollRepo,
		Events:    em,
	}, log)

	srv := New(Config{
		Log:      log,
		Port:     0,
		DevMode:  true,
		Cycle:    svc,
		Store:    store,
		History:  history,
		RecRepo:  recRepo,
		Monitor:  monitor,
		Bankroll: bankrollRepo,
		Engine:   engine,
		Backtest: runner,
	})
	return &testEnv{server: srv, history: history, bankroll: bankrollRepo, monitor: monitor}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRecommendationsAndMovementsEmpty(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.get(t, "/api/recommendations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = env.get(t, "/api/movements")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBankrollStatusEndpoint(t *testing.T) {
	env := newTestServer(t, nil)
	now := time.Now()

	require.NoError(t, env.bankroll.Record(bankroll.Entry{Amount: 1000, Kind: bankroll.KindDeposit, RecordedAt: now.Add(-time.Hour)}))

	rec := env.get(t, "/api/bankroll/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status staking.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1000.0, status.Bankroll)
	assert.Equal(t, 200.0, status.DailyRemaining)
}

func TestRunCycleEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.post(t, "/api/cycle/run", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	var res cycle.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Aborted)
}

func TestBacktestEndpoint(t *testing.T) {
	env := newTestServer(t, nil)
	t0 := time.Now().Truncate(time.Second).Add(-time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, env.history.Upsert(domain.MarketQuote{
			EventID:      fmt.Sprintf("evt%d", i),
			Sport:        domain.SportNBA,
			Market:       domain.MarketMoneyline,
			Selection:    fmt.Sprintf("sel%d", i),
			Price:        2.0,
			BookID:       "draftkings",
			EventStartAt: t0.Add(6 * time.Hour),
			ObservedAt:   t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	req := map[string]interface{}{
		"from":              t0.Add(-time.Minute).Format(time.RFC3339),
		"to":                t0.Add(time.Hour).Format(time.RFC3339),
		"strategy":          "fixed",
		"starting_bankroll": 1000,
		"fixed_stake":       10,
		"outcomes": []map[string]interface{}{
			{"event_id": "evt0", "market": "moneyline", "selection": "sel0", "won": true},
			{"event_id": "evt1", "market": "moneyline", "selection": "sel1", "won": false},
		},
	}

	rec := env.post(t, "/api/backtest", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, backtest.StrategyFixed, res.Strategy)
	assert.Equal(t, 2, res.BetsEvaluated)
}

func TestBacktestEndpoint_BadRange(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.post(t, "/api/backtest", map[string]interface{}{
		"from": time.Now().Format(time.RFC3339),
		"to":   time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
