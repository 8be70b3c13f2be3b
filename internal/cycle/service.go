// Package cycle orchestrates one evaluation pass: ingest quotes, evaluate
// edges, build combinations, size stakes, deduplicate and dispatch.
package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/clients/modelprob"
	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/events"
	"github.com/oddstack/wagerline/internal/modules/dedup"
	"github.com/oddstack/wagerline/internal/modules/edge"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/notify"
	"github.com/oddstack/wagerline/internal/modules/parlay"
	"github.com/oddstack/wagerline/internal/modules/quotes"
	"github.com/oddstack/wagerline/internal/modules/staking"
)

// QuoteSource supplies current quotes per sport.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, sport domain.Sport) ([]domain.MarketQuote, error)
}

// Ledger reads bankroll state. The cycle never writes it.
type Ledger interface {
	Balance() (float64, error)
	SpentSince(cutoff time.Time) (float64, error)
}

// Result summarizes one cycle run. Aborted (external data unavailable) and
// "ran but found nothing" are distinct outcomes.
type Result struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Skipped        bool          `json:"skipped"` // an earlier run still held the token
	Aborted        bool          `json:"aborted"`
	AbortReason    string        `json:"abort_reason,omitempty"`
	QuotesIngested int           `json:"quotes_ingested"`
	LegsEvaluated  int           `json:"legs_evaluated"`
	Candidates     int           `json:"candidates"`
	SportsSkipped  []string      `json:"sports_skipped,omitempty"`
	Issued         int           `json:"issued"`
	Duplicates     int           `json:"duplicates"`
	NoEdge         int           `json:"no_edge"`
}

// Service runs evaluation cycles single-flight.
type Service struct {
	cfg     domain.CycleConfig
	timeout time.Duration

	store     *quotes.Store
	history   *quotes.HistoryRepository
	feed      QuoteSource
	models    modelprob.Provider
	evaluator *edge.Evaluator
	builder   *parlay.Builder
	engine    *staking.Engine
	tracker   *dedup.Tracker
	monitor   *movement.Monitor
	ledger    Ledger
	channels  []notify.Channel
	events    *events.Manager
	log       zerolog.Logger

	// Single-flight token. CompareAndSwap here is the guard against a
	// trigger overlapping a still-running cycle.
	running atomic.Bool

	mu   sync.Mutex
	last *Result
}

// Deps wires the service.
type Deps struct {
	Store     *quotes.Store
	History   *quotes.HistoryRepository
	Feed      QuoteSource
	Models    modelprob.Provider
	Evaluator *edge.Evaluator
	Builder   *parlay.Builder
	Engine    *staking.Engine
	Tracker   *dedup.Tracker
	Monitor   *movement.Monitor
	Ledger    Ledger
	Channels  []notify.Channel
	Events    *events.Manager
}

// NewService creates the cycle service.
func NewService(cfg domain.CycleConfig, timeout time.Duration, d Deps, log zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		timeout:   timeout,
		store:     d.Store,
		history:   d.History,
		feed:      d.Feed,
		models:    d.Models,
		evaluator: d.Evaluator,
		builder:   d.Builder,
		engine:    d.Engine,
		tracker:   d.Tracker,
		monitor:   d.Monitor,
		ledger:    d.Ledger,
		channels:  d.Channels,
		events:    d.Events,
		log:       log.With().Str("service", "cycle").Logger(),
	}
}

// LastResult returns the most recent cycle outcome, if any.
func (s *Service) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// Run executes one cycle. A run that finds another cycle in flight returns
// immediately with Skipped set; a run whose every sport lost its data source
// aborts with ErrExternalUnavailable. Per-leg and per-sport failures stay
// local.
func (s *Service) Run(ctx context.Context) (Result, error) {
	res := Result{StartedAt: time.Now()}

	if !s.running.CompareAndSwap(false, true) {
		res.Skipped = true
		s.events.Emit(events.CycleSkipped, "cycle", map[string]interface{}{
			"reason": "previous cycle still running",
		})
		return res, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.run(ctx, &res)
	res.Duration = time.Since(res.StartedAt)

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	switch {
	case err != nil:
		s.events.Emit(events.CycleAborted, "cycle", map[string]interface{}{
			"reason":   res.AbortReason,
			"duration": res.Duration.String(),
		})
	default:
		s.events.Emit(events.CycleCompleted, "cycle", map[string]interface{}{
			"quotes_ingested": res.QuotesIngested,
			"candidates":      res.Candidates,
			"issued":          res.Issued,
			"duplicates":      res.Duplicates,
			"duration":        res.Duration.String(),
		})
	}
	return res, err
}

func (s *Service) run(ctx context.Context, res *Result) error {
	now := res.StartedAt

	if err := s.ingest(ctx, res); err != nil {
		res.Aborted = true
		res.AbortReason = err.Error()
		return err
	}

	candidates := s.evaluate(ctx, now, res)

	bankroll, budget, err := s.budget(now)
	if err != nil {
		res.Aborted = true
		res.AbortReason = err.Error()
		return err
	}

	s.dispatchSingles(ctx, candidates, bankroll, &budget, now, res)
	s.dispatchParlays(ctx, candidates, bankroll, &budget, now, res)
	return ctx.Err()
}

// ingest pulls quotes for every configured sport. One unreachable sport is
// skipped for the cycle; all sports unreachable aborts it.
func (s *Service) ingest(ctx context.Context, res *Result) error {
	failed := 0
	for _, sport := range s.cfg.Sports {
		fetched, err := s.feed.FetchQuotes(ctx, sport)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%w: ingest cancelled", domain.ErrExternalUnavailable)
			}
			failed++
			res.SportsSkipped = append(res.SportsSkipped, string(sport))
			s.log.Warn().Err(err).Str("sport", string(sport)).Msg("Skipping sport this cycle")
			continue
		}
		for _, q := range fetched {
			if _, applied := s.store.Upsert(q); !applied {
				continue
			}
			res.QuotesIngested++
			s.monitor.Observe(q)
			if err := s.history.Upsert(q); err != nil {
				s.log.Warn().Err(err).Str("key", q.Key().String()).Msg("Failed to persist quote")
			}
		}
	}

	s.events.Emit(events.QuoteBatchIngested, "cycle", map[string]interface{}{
		"quotes": res.QuotesIngested,
		"failed": failed,
	})

	if len(s.cfg.Sports) > 0 && failed == len(s.cfg.Sports) {
		return fmt.Errorf("%w: every sport failed to fetch", domain.ErrExternalUnavailable)
	}
	return nil
}

// evaluate turns the stored snapshot into qualifying candidate legs.
// Stale and malformed quotes are dropped quietly.
func (s *Service) evaluate(ctx context.Context, now time.Time, res *Result) []domain.Leg {
	var candidates []domain.Leg
	for _, sport := range s.cfg.Sports {
		for _, q := range s.store.SnapshotBySport(sport) {
			res.LegsEvaluated++

			in := edge.Input{
				Quote:          q,
				MarketOutcomes: s.store.MarketOutcomes(q.EventID, q.Market, q.BookID),
				AsOf:           now,
			}
			if est, err := s.models.Estimate(ctx, q.Identity()); err == nil && est != nil {
				p := est.Probability
				in.ModelProbability = &p
				in.ModelConfidence = est.Confidence
			}

			leg, err := s.evaluator.Evaluate(in)
			if err != nil {
				if !errors.Is(err, domain.ErrStaleQuote) && !errors.Is(err, domain.ErrBadQuote) {
					s.log.Warn().Err(err).Str("key", q.Key().String()).Msg("Leg evaluation failed")
				}
				continue
			}
			if !s.evaluator.Qualifies(leg) {
				continue
			}
			candidates = append(candidates, leg)
		}
	}
	res.Candidates = len(candidates)
	return candidates
}

// budget reads the ledger once per cycle and derives the in-cycle view.
func (s *Service) budget(now time.Time) (float64, staking.BudgetView, error) {
	bankroll, err := s.ledger.Balance()
	if err != nil {
		return 0, staking.BudgetView{}, fmt.Errorf("failed to read bankroll: %w", err)
	}
	spentToday, err := s.ledger.SpentSince(startOfDay(now))
	if err != nil {
		return 0, staking.BudgetView{}, fmt.Errorf("failed to read daily spend: %w", err)
	}
	spentWeek, err := s.ledger.SpentSince(startOfWeek(now))
	if err != nil {
		return 0, staking.BudgetView{}, fmt.Errorf("failed to read weekly spend: %w", err)
	}
	return bankroll, s.engine.NewBudgetView(spentToday, spentWeek), nil
}

// dispatchSingles issues the best standalone leg per sport.
func (s *Service) dispatchSingles(ctx context.Context, candidates []domain.Leg, bankroll float64, budget *staking.BudgetView, now time.Time, res *Result) {
	for _, legs := range parlay.GroupBySport(candidates) {
		best := legs[0]
		for _, l := range legs[1:] {
			// Snapshot order is not stable, so ties break on identity.
			if l.ValueScore > best.ValueScore ||
				(l.ValueScore == best.ValueScore && l.Identity().String() < best.Identity().String()) {
				best = l
			}
		}

		rec, err := s.engine.Recommend(best.ModelProbability, best.Price, bankroll, *budget)
		if err != nil {
			s.log.Warn().Err(err).Str("key", best.Identity().String()).Msg("Staking failed for single")
			continue
		}
		if rec.NoBet() {
			res.NoEdge++
			s.events.Emit(events.RecommendationSkipped, "cycle", map[string]interface{}{
				"identity": best.Identity().String(),
				"reason":   domain.ErrNoEdge.Error(),
			})
			continue
		}

		payload := notify.SinglePayload(best, rec, now)
		s.dispatch(ctx, dedup.IssuedRecommendation{
			IdentityKey: best.Identity().String(),
			Sport:       best.Sport,
			Kind:        dedup.KindSingle,
		}, payload, budget, now, res)
	}
}

// dispatchParlays builds and issues one combination per sport grouping.
func (s *Service) dispatchParlays(ctx context.Context, candidates []domain.Leg, bankroll float64, budget *staking.BudgetView, now time.Time, res *Result) {
	for sport, legs := range parlay.GroupBySport(candidates) {
		combo, err := s.builder.Build(legs)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientCandidates) {
				s.log.Debug().Str("sport", string(sport)).Msg("No qualifying combination this cycle")
			} else {
				s.log.Warn().Err(err).Str("sport", string(sport)).Msg("Combination build failed")
			}
			continue
		}

		rec, err := s.engine.Recommend(combo.CombinedProbability, combo.CombinedPrice, bankroll, *budget)
		if err != nil {
			s.log.Warn().Err(err).Str("sport", string(sport)).Msg("Staking failed for combination")
			continue
		}
		if rec.NoBet() {
			res.NoEdge++
			s.events.Emit(events.RecommendationSkipped, "cycle", map[string]interface{}{
				"signature": combo.Signature(),
				"reason":    domain.ErrNoEdge.Error(),
			})
			continue
		}

		payload := notify.ParlayPayload(combo, rec, now)
		s.dispatch(ctx, dedup.IssuedRecommendation{
			IdentityKey: combo.Signature(),
			Sport:       combo.Sport,
			Kind:        dedup.KindParlay,
		}, payload, budget, now, res)
	}
}

// dispatch gates through the deduplicator, then notifies. Recording happens
// with acceptance, before delivery, so a crash mid-delivery errs on the
// side of not re-spamming.
func (s *Service) dispatch(ctx context.Context, rec dedup.IssuedRecommendation, payload notify.Payload, budget *staking.BudgetView, now time.Time, res *Result) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode payload")
		return
	}
	rec.Payload = body
	rec.IssuedAt = now

	if err := s.tracker.AcceptAndRecord(rec, now); err != nil {
		if errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrConcurrencyConflict) {
			res.Duplicates++
			s.events.Emit(events.RecommendationSkipped, "cycle", map[string]interface{}{
				"identity": rec.IdentityKey,
				"reason":   domain.ErrDuplicate.Error(),
			})
			return
		}
		s.log.Error().Err(err).Str("identity", rec.IdentityKey).Msg("Issuance recording failed")
		return
	}

	for _, ch := range s.channels {
		if err := ch.Send(ctx, payload); err != nil {
			s.log.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification delivery failed")
		}
	}

	budget.Commit(payload.Stake.RecommendedAmount)
	res.Issued++
	s.events.Emit(events.RecommendationIssued, "cycle", map[string]interface{}{
		"identity": rec.IdentityKey,
		"kind":     string(rec.Kind),
		"sport":    string(rec.Sport),
		"stake":    payload.Stake.RecommendedAmount,
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday start
	return day.AddDate(0, 0, -offset)
}
