// Package backtest replays historical quotes through the live evaluation
// and staking logic.
package backtest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/modules/edge"
	"github.com/oddstack/wagerline/internal/modules/staking"
)

// Strategy selects how stakes are sized during a run.
type Strategy string

const (
	StrategyKelly           Strategy = "kelly"
	StrategyFixed           Strategy = "fixed"
	StrategyProportional    Strategy = "proportional"
	StrategyConfidenceGated Strategy = "confidence_gated"
)

// Strategies lists every runnable strategy, for comparison runs.
var Strategies = []Strategy{StrategyKelly, StrategyFixed, StrategyProportional, StrategyConfidenceGated}

// Bet is one historical opportunity with its realized outcome.
type Bet struct {
	Quote            domain.MarketQuote `json:"quote"`
	ModelProbability *float64           `json:"model_probability,omitempty"`
	ModelConfidence  float64            `json:"model_confidence,omitempty"`
	Won              bool               `json:"won"`
}

// Config parameterizes one run.
type Config struct {
	StartingBankroll    float64  `json:"starting_bankroll"`
	Strategy            Strategy `json:"strategy"`
	FixedStake          float64  `json:"fixed_stake,omitempty"`          // fixed strategy
	ProportionalPercent float64  `json:"proportional_percent,omitempty"` // proportional strategy
	NoStopLoss          bool     `json:"no_stop_loss,omitempty"`
}

// Result aggregates one run's outcome.
type Result struct {
	Strategy         Strategy `json:"strategy"`
	StartingBankroll float64  `json:"starting_bankroll"`
	FinalBankroll    float64  `json:"final_bankroll"`
	BetsEvaluated    int      `json:"bets_evaluated"`
	BetsPlaced       int      `json:"bets_placed"`
	BetsWon          int      `json:"bets_won"`
	ROI              float64  `json:"roi"`
	HitRate          float64  `json:"hit_rate"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Sharpe           float64  `json:"sharpe"`
	Halted           bool     `json:"halted"` // stop-loss triggered
}

// Runner replays bets through the same evaluator and staking engine the
// live cycle uses, strictly in observation order with no lookahead.
type Runner struct {
	cfg       domain.CycleConfig
	evaluator *edge.Evaluator
	engine    *staking.Engine
	log       zerolog.Logger
}

// NewRunner creates a runner sharing the live components.
func NewRunner(cfg domain.CycleConfig, evaluator *edge.Evaluator, engine *staking.Engine, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		evaluator: evaluator,
		engine:    engine,
		log:       log.With().Str("component", "backtest_runner").Logger(),
	}
}

// Run replays the bets under one configuration.
func (r *Runner) Run(bets []Bet, cfg Config) (Result, error) {
	if cfg.StartingBankroll <= 0 {
		return Result{}, fmt.Errorf("starting bankroll %v not positive", cfg.StartingBankroll)
	}

	ordered := make([]Bet, len(bets))
	copy(ordered, bets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Quote.ObservedAt.Before(ordered[j].Quote.ObservedAt)
	})

	res := Result{
		Strategy:         cfg.Strategy,
		StartingBankroll: cfg.StartingBankroll,
	}
	bankroll := cfg.StartingBankroll
	peak := bankroll
	var returns []float64

	for _, bet := range ordered {
		res.BetsEvaluated++

		leg, err := r.evaluator.Evaluate(edge.Input{
			Quote:            bet.Quote,
			ModelProbability: bet.ModelProbability,
			ModelConfidence:  bet.ModelConfidence,
			AsOf:             bet.Quote.ObservedAt,
		})
		if err != nil {
			continue
		}
		if !r.evaluator.Qualifies(leg) {
			continue
		}

		stake, err := r.stake(leg, bankroll, cfg)
		if errors.Is(err, domain.ErrBankrollDepleted) {
			res.Halted = true
			break
		}
		if err != nil || stake <= 0 {
			continue
		}

		res.BetsPlaced++
		if bet.Won {
			res.BetsWon++
			profit := stake * (leg.Price - 1.0)
			bankroll += profit
			returns = append(returns, profit/stake)
		} else {
			bankroll -= stake
			returns = append(returns, -1.0)
		}

		if bankroll > peak {
			peak = bankroll
		}
		if peak > 0 {
			if dd := (peak - bankroll) / peak; dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}
	}

	res.FinalBankroll = bankroll
	res.ROI = (bankroll - cfg.StartingBankroll) / cfg.StartingBankroll
	if res.BetsPlaced > 0 {
		res.HitRate = float64(res.BetsWon) / float64(res.BetsPlaced)
	}
	if len(returns) > 1 {
		mean := stat.Mean(returns, nil)
		std := stat.StdDev(returns, nil)
		if std > 0 {
			res.Sharpe = mean / std
		}
	}
	return res, nil
}

// stake sizes one bet per the strategy. ErrBankrollDepleted halts the run
// once the simulated bankroll is gone, unless the run opted out.
func (r *Runner) stake(leg domain.Leg, bankroll float64, cfg Config) (float64, error) {
	if bankroll <= 0 && !cfg.NoStopLoss {
		return 0, domain.ErrBankrollDepleted
	}
	if bankroll <= 0 {
		return 0, nil
	}

	switch cfg.Strategy {
	case StrategyFixed:
		stake := cfg.FixedStake
		if stake <= 0 {
			stake = bankroll * 0.01
		}
		if stake > bankroll {
			stake = bankroll
		}
		return stake, nil

	case StrategyProportional:
		percent := cfg.ProportionalPercent
		if percent <= 0 {
			percent = 0.02
		}
		if percent > r.cfg.MaxStakePercent {
			percent = r.cfg.MaxStakePercent
		}
		return bankroll * percent, nil

	case StrategyConfidenceGated:
		if leg.Tier != domain.TierHigh {
			return 0, nil
		}
		fallthrough

	case StrategyKelly:
		// Budgets do not bind a simulation; only the bankroll caps apply.
		rec, err := r.engine.Recommend(leg.ModelProbability, leg.Price, bankroll,
			staking.BudgetView{DailyRemaining: bankroll, WeeklyRemaining: bankroll})
		if err != nil {
			return 0, err
		}
		return rec.RecommendedAmount, nil

	default:
		return 0, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// CompareStrategies runs every strategy over the same bets and period.
func (r *Runner) CompareStrategies(bets []Bet, base Config) (map[Strategy]Result, error) {
	out := make(map[Strategy]Result, len(Strategies))
	for _, s := range Strategies {
		cfg := base
		cfg.Strategy = s
		res, err := r.Run(bets, cfg)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s, err)
		}
		out[s] = res
	}
	return out, nil
}

// BetsFromHistory pairs a chronological quote range with realized outcomes
// keyed by quote identity. Quotes with no known outcome are dropped.
func BetsFromHistory(quotes []domain.MarketQuote, outcomes map[domain.IdentityKey]bool) []Bet {
	var out []Bet
	for _, q := range quotes {
		won, ok := outcomes[q.Identity()]
		if !ok {
			continue
		}
		out = append(out, Bet{Quote: q, Won: won})
	}
	return out
}
