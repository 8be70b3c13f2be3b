// Package edge evaluates single quotes into value legs.
package edge

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// Confidence discount applied when the market's full outcome set was not
// available and the implied probability still carries the book's margin.
const vigUnadjustedDiscount = 0.9

// Default confidence for a model-backed leg when the provider does not
// report its own confidence.
const defaultModelConfidence = 0.7

// Input carries everything one evaluation needs. AsOf is explicit so the
// backtester can replay historical instants; the evaluator never reads the
// wall clock.
type Input struct {
	Quote            domain.MarketQuote
	ModelProbability *float64 // nil when no model estimate exists
	ModelConfidence  float64  // 0 means "provider did not say"
	// MarketOutcomes holds every mutually exclusive outcome of the quote's
	// market at the same book, including the quote itself. When at least two
	// are present the implied probability is vig-stripped.
	MarketOutcomes []domain.MarketQuote
	AsOf           time.Time
}

// Evaluator turns quotes into legs. It is a pure function of its input and
// configuration; the same instance serves the live cycle and the backtester.
type Evaluator struct {
	cfg domain.CycleConfig
	log zerolog.Logger
}

// New creates an evaluator.
func New(cfg domain.CycleConfig, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		cfg: cfg,
		log: log.With().Str("component", "edge_evaluator").Logger(),
	}
}

// Evaluate builds a Leg from one quote.
//
// Probability source, in order of preference: the model probability when one
// is supplied, otherwise the (vig-adjusted where possible) implied
// probability with confidence capped below the model-backed range.
// Confidence decays linearly toward the configured floor as the quote ages;
// a quote past the staleness threshold fails with ErrStaleQuote.
func (e *Evaluator) Evaluate(in Input) (domain.Leg, error) {
	q := in.Quote
	if err := validateQuote(q); err != nil {
		return domain.Leg{}, err
	}

	age := q.Age(in.AsOf)
	if age > e.cfg.StalenessThreshold {
		return domain.Leg{}, fmt.Errorf("%w: %s observed %s before as-of",
			domain.ErrStaleQuote, q.Key().String(), age)
	}

	implied, err := domain.ImpliedProbability(q.Price)
	if err != nil {
		return domain.Leg{}, err
	}

	vigAdjusted := false
	if adjusted, ok := e.vigAdjust(q, in.MarketOutcomes); ok {
		implied = adjusted
		vigAdjusted = true
	}

	var (
		p           float64
		confidence  float64
		modelBacked bool
	)
	switch {
	case in.ModelProbability != nil && *in.ModelProbability > 0 && *in.ModelProbability < 1:
		p = *in.ModelProbability
		modelBacked = true
		confidence = in.ModelConfidence
		if confidence <= 0 {
			confidence = defaultModelConfidence
		}
	default:
		p = implied
		confidence = e.cfg.UnmodeledConfidenceCap
	}
	if !modelBacked && confidence > e.cfg.UnmodeledConfidenceCap {
		confidence = e.cfg.UnmodeledConfidenceCap
	}
	if !vigAdjusted {
		confidence *= vigUnadjustedDiscount
	}
	confidence = e.decay(confidence, age)

	ev := domain.ExpectedValue(p, q.Price)

	leg := domain.Leg{
		EventID:            q.EventID,
		Sport:              q.Sport,
		Market:             q.Market,
		Selection:          q.Selection,
		Line:               q.Line,
		Price:              q.Price,
		BookID:             q.BookID,
		Team:               q.Team,
		EventStartAt:       q.EventStartAt,
		ModelProbability:   p,
		ImpliedProbability: implied,
		VigAdjusted:        vigAdjusted,
		ModelBacked:        modelBacked,
		EV:                 ev,
		Confidence:         confidence,
		Tier:               domain.TierForConfidence(confidence),
		ValueScore:         0.6*ev + 0.4*confidence,
	}
	return leg, nil
}

// Qualifies reports whether a leg clears the configured EV and confidence
// minimums. Legs that fail are not errors, just not candidates.
func (e *Evaluator) Qualifies(leg domain.Leg) bool {
	return leg.EV >= e.cfg.MinEV && leg.Confidence >= e.cfg.MinConfidence
}

// vigAdjust returns the quote's share of the market's normalized implied
// probabilities. It needs at least two outcomes and the quote itself among
// them; otherwise the market is incomplete and no adjustment happens.
func (e *Evaluator) vigAdjust(q domain.MarketQuote, outcomes []domain.MarketQuote) (float64, bool) {
	if len(outcomes) < 2 {
		return 0, false
	}
	implied := make([]float64, 0, len(outcomes))
	self := -1
	for i, o := range outcomes {
		p, err := domain.ImpliedProbability(o.Price)
		if err != nil {
			e.log.Debug().Str("key", o.Key().String()).Err(err).Msg("Skipping vig adjustment, unusable outcome price")
			return 0, false
		}
		implied = append(implied, p)
		if o.Key() == q.Key() {
			self = i
		}
	}
	if self < 0 {
		return 0, false
	}
	normalized, err := domain.RemoveVig(implied)
	if err != nil {
		return 0, false
	}
	return normalized[self], true
}

// decay moves confidence linearly toward the floor as the quote ages across
// the staleness window. Fresh quotes keep full confidence.
func (e *Evaluator) decay(confidence float64, age time.Duration) float64 {
	if age <= 0 || e.cfg.StalenessThreshold <= 0 {
		return confidence
	}
	floor := e.cfg.ConfidenceFloor
	if confidence <= floor {
		return confidence
	}
	fraction := float64(age) / float64(e.cfg.StalenessThreshold)
	if fraction > 1 {
		fraction = 1
	}
	return confidence - (confidence-floor)*fraction
}

func validateQuote(q domain.MarketQuote) error {
	switch {
	case q.EventID == "" || q.Selection == "" || q.BookID == "":
		return fmt.Errorf("%w: missing key fields", domain.ErrBadQuote)
	case q.Price <= 1:
		return fmt.Errorf("%w: decimal price %v not above 1", domain.ErrBadQuote, q.Price)
	case q.ObservedAt.IsZero():
		return fmt.Errorf("%w: missing observation time", domain.ErrBadQuote)
	}
	return nil
}
