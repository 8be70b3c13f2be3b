package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/cycle"
	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/modules/backtest"
	"github.com/oddstack/wagerline/internal/modules/bankroll"
	"github.com/oddstack/wagerline/internal/modules/dedup"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/quotes"
	"github.com/oddstack/wagerline/internal/modules/staking"
)

type apiHandlers struct {
	log       zerolog.Logger
	startedAt time.Time
	cycle     *cycle.Service
	store     *quotes.Store
	history   *quotes.HistoryRepository
	recRepo   *dedup.Repository
	monitor   *movement.Monitor
	bankroll  *bankroll.Repository
	engine    *staking.Engine
	backtest  *backtest.Runner
}

// RegisterRoutes mounts the API routes.
func (h *apiHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/system", h.handleSystem)
	r.Get("/recommendations", h.handleRecommendations)
	r.Get("/movements", h.handleMovements)
	r.Get("/bankroll/status", h.handleBankrollStatus)
	r.Post("/cycle/run", h.handleRunCycle)
	r.Post("/backtest", h.handleBacktest)
}

func (h *apiHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"uptime":      time.Since(h.startedAt).String(),
		"quotes_held": h.store.Len(),
		"last_cycle":  h.cycle.LastResult(),
	})
}

func (h *apiHandlers) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	recs, err := h.recRepo.Recent(limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []dedup.IssuedRecommendation{}
	}
	h.respondJSON(w, http.StatusOK, recs)
}

func (h *apiHandlers) handleMovements(w http.ResponseWriter, r *http.Request) {
	events := h.monitor.Recent()
	if events == nil {
		events = []domain.MovementEvent{}
	}
	h.respondJSON(w, http.StatusOK, events)
}

func (h *apiHandlers) handleBankrollStatus(w http.ResponseWriter, r *http.Request) {
	balance, err := h.bankroll.Balance()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	starting, err := h.bankroll.StartingBalance()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	now := time.Now()
	spentToday, err := h.bankroll.SpentSince(startOfDay(now))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	spentWeek, err := h.bankroll.SpentSince(startOfWeek(now))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	view := h.engine.NewBudgetView(spentToday, spentWeek)
	h.respondJSON(w, http.StatusOK, staking.BudgetStatus(balance, starting, view))
}

func (h *apiHandlers) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.cycle.Run(r.Context())
	if err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"result": res,
			"error":  err.Error(),
		})
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusConflict
	}
	h.respondJSON(w, status, res)
}

type backtestOutcome struct {
	EventID   string            `json:"event_id"`
	Market    domain.MarketType `json:"market"`
	Selection string            `json:"selection"`
	Won       bool              `json:"won"`
}

type backtestRequest struct {
	From                time.Time         `json:"from"`
	To                  time.Time         `json:"to"`
	Strategy            backtest.Strategy `json:"strategy"`
	Compare             bool              `json:"compare,omitempty"`
	StartingBankroll    float64           `json:"starting_bankroll"`
	FixedStake          float64           `json:"fixed_stake,omitempty"`
	ProportionalPercent float64           `json:"proportional_percent,omitempty"`
	NoStopLoss          bool              `json:"no_stop_loss,omitempty"`
	Outcomes            []backtestOutcome `json:"outcomes"`
}

func (h *apiHandlers) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	if !req.To.After(req.From) {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be after from"})
		return
	}

	history, err := h.history.Range(req.From, req.To)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	outcomes := make(map[domain.IdentityKey]bool, len(req.Outcomes))
	for _, o := range req.Outcomes {
		outcomes[domain.IdentityKey{EventID: o.EventID, Market: o.Market, Selection: o.Selection}] = o.Won
	}
	bets := backtest.BetsFromHistory(history, outcomes)

	cfg := backtest.Config{
		StartingBankroll:    req.StartingBankroll,
		Strategy:            req.Strategy,
		FixedStake:          req.FixedStake,
		ProportionalPercent: req.ProportionalPercent,
		NoStopLoss:          req.NoStopLoss,
	}

	if req.Compare {
		results, err := h.backtest.CompareStrategies(bets, cfg)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err)
			return
		}
		h.respondJSON(w, http.StatusOK, results)
		return
	}

	if cfg.Strategy == "" {
		cfg.Strategy = backtest.StrategyKelly
	}
	res, err := h.backtest.Run(bets, cfg)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *apiHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *apiHandlers) respondError(w http.ResponseWriter, status int, err error) {
	h.log.Error().Err(err).Msg("Request failed")
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
