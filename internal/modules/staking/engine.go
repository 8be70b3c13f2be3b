// Package staking sizes stakes with a fractional Kelly criterion under
// bankroll and budget caps.
package staking

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// BudgetView is the in-cycle view of remaining spend. Accepted
// recommendations commit against it so sequential recommendations in one
// cycle cannot jointly over-commit the bankroll. The durable ledger is
// external; this view is rebuilt from it at the start of every cycle.
type BudgetView struct {
	DailyRemaining  float64
	WeeklyRemaining float64
}

// Commit decrements the view by an accepted stake.
func (v *BudgetView) Commit(amount float64) {
	v.DailyRemaining -= amount
	v.WeeklyRemaining -= amount
	if v.DailyRemaining < 0 {
		v.DailyRemaining = 0
	}
	if v.WeeklyRemaining < 0 {
		v.WeeklyRemaining = 0
	}
}

// Status is a point-in-time budget report.
type Status struct {
	Bankroll        float64 `json:"bankroll"`
	StartingBalance float64 `json:"starting_balance"`
	ROI             float64 `json:"roi"`
	DailyRemaining  float64 `json:"daily_remaining"`
	WeeklyRemaining float64 `json:"weekly_remaining"`
}

// BudgetStatus builds a Status from the current bankroll and budget view.
func BudgetStatus(bankroll, startingBalance float64, v BudgetView) Status {
	s := Status{
		Bankroll:        bankroll,
		StartingBalance: startingBalance,
		DailyRemaining:  v.DailyRemaining,
		WeeklyRemaining: v.WeeklyRemaining,
	}
	if startingBalance > 0 {
		s.ROI = (bankroll - startingBalance) / startingBalance
	}
	return s
}

// Engine computes stake recommendations. It is a pure function of its
// inputs; it never debits the ledger or mutates the budget view.
type Engine struct {
	cfg domain.CycleConfig
	log zerolog.Logger
}

// New creates a staking engine.
func New(cfg domain.CycleConfig, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "staking_engine").Logger(),
	}
}

// Recommend sizes a stake for one bet.
//
// Full Kelly f* = (b·p − q)/b with b = price−1, clamped to [0, 1], scaled
// by the configured fraction, then capped by max stake percent and the
// remaining daily and weekly budgets. A non-positive f* yields a valid
// zero-stake recommendation, not an error.
func (e *Engine) Recommend(winProbability, price, bankroll float64, budget BudgetView) (domain.StakeRecommendation, error) {
	if winProbability <= 0 || winProbability >= 1 {
		return domain.StakeRecommendation{}, fmt.Errorf("%w: win probability %v outside (0, 1)",
			domain.ErrBadQuote, winProbability)
	}
	if price <= 1 {
		return domain.StakeRecommendation{}, fmt.Errorf("%w: decimal price %v not above 1",
			domain.ErrBadQuote, price)
	}

	rec := domain.StakeRecommendation{BankrollAtDecision: bankroll}
	if bankroll <= 0 {
		return rec, nil
	}

	b := price - 1.0
	kelly := (b*winProbability - (1.0 - winProbability)) / b
	if kelly <= 0 {
		return rec, nil
	}
	if kelly > 1 {
		kelly = 1
	}
	rec.KellyFraction = kelly
	rec.ScaledFraction = kelly * e.cfg.KellyFractionMultiplier

	percent := rec.ScaledFraction
	if percent > e.cfg.MaxStakePercent {
		percent = e.cfg.MaxStakePercent
	}
	if limit := budget.DailyRemaining / bankroll; percent > limit {
		percent = limit
	}
	if limit := budget.WeeklyRemaining / bankroll; percent > limit {
		percent = limit
	}
	if percent < 0 {
		percent = 0
	}

	rec.RecommendedPercent = percent
	rec.RecommendedAmount = percent * bankroll
	return rec, nil
}

// NewBudgetView derives the in-cycle view from configured budgets and the
// ledger's spent-to-date figures.
func (e *Engine) NewBudgetView(spentToday, spentThisWeek float64) BudgetView {
	v := BudgetView{
		DailyRemaining:  e.cfg.DailyBudget - spentToday,
		WeeklyRemaining: e.cfg.WeeklyBudget - spentThisWeek,
	}
	if v.DailyRemaining < 0 {
		v.DailyRemaining = 0
	}
	if v.WeeklyRemaining < 0 {
		v.WeeklyRemaining = 0
	}
	return v
}
