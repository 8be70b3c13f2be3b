// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Sport represents a sport grouping
type Sport string

const (
	SportNBA    Sport = "NBA"
	SportNFL    Sport = "NFL"
	SportMLB    Sport = "MLB"
	SportNHL    Sport = "NHL"
	SportUFC    Sport = "UFC"
	SportBoxing Sport = "BOXING"
)

// MarketType represents the type of bet market
type MarketType string

const (
	MarketMoneyline       MarketType = "moneyline"
	MarketSpread          MarketType = "spread"
	MarketTotal           MarketType = "total"
	MarketProp            MarketType = "prop"
	MarketAlternateSpread MarketType = "alternate_spread"
	MarketAlternateTotal  MarketType = "alternate_total"
	MarketTeamTotal       MarketType = "team_total"
	MarketQuarter         MarketType = "quarter"
	MarketHalf            MarketType = "half"
	MarketPeriod          MarketType = "period"
	MarketInnings         MarketType = "innings"
)

// MarketFamily groups market types that settle on related outcomes.
// Used by the correlation model: two legs in the same family on the same
// event are close to mutually determined.
type MarketFamily string

const (
	FamilyOutcome MarketFamily = "outcome" // who wins / by how much
	FamilyTotals  MarketFamily = "totals"  // combined or team scoring
	FamilyProp    MarketFamily = "prop"    // player props
	FamilySegment MarketFamily = "segment" // quarter/half/period/innings markets
)

// Family returns the market family for a market type.
func (m MarketType) Family() MarketFamily {
	switch m {
	case MarketMoneyline, MarketSpread, MarketAlternateSpread:
		return FamilyOutcome
	case MarketTotal, MarketAlternateTotal, MarketTeamTotal:
		return FamilyTotals
	case MarketProp:
		return FamilyProp
	case MarketQuarter, MarketHalf, MarketPeriod, MarketInnings:
		return FamilySegment
	}
	return FamilyOutcome
}

// ConfidenceTier buckets a leg's confidence for display and gating
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "High"
	TierMedium ConfidenceTier = "Medium"
	TierLow    ConfidenceTier = "Low"
)

// TierForConfidence maps a confidence score to its tier.
func TierForConfidence(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.75:
		return TierHigh
	case confidence >= 0.65:
		return TierMedium
	default:
		return TierLow
	}
}

// QuoteKey identifies a priced selection at one book
type QuoteKey struct {
	EventID   string     `json:"event_id"`
	Market    MarketType `json:"market"`
	Selection string     `json:"selection"`
	BookID    string     `json:"book_id"`
}

// String returns a stable string form usable as a map key or log field.
func (k QuoteKey) String() string {
	return strings.Join([]string{k.EventID, string(k.Market), k.Selection, k.BookID}, "|")
}

// IdentityKey identifies a recommendation independent of book and time.
// Two picks with the same identity key are the same recommendation for
// deduplication purposes.
type IdentityKey struct {
	EventID   string     `json:"event_id"`
	Market    MarketType `json:"market"`
	Selection string     `json:"selection"`
}

// String returns a stable string form.
func (k IdentityKey) String() string {
	return strings.Join([]string{k.EventID, string(k.Market), k.Selection}, "|")
}

// MarketQuote is an immutable observation of a price at one book.
// A newer quote for the same QuoteKey supersedes it wholesale; quotes are
// never merged.
type MarketQuote struct {
	EventID      string     `json:"event_id"`
	Sport        Sport      `json:"sport"`
	Market       MarketType `json:"market"`
	Selection    string     `json:"selection"`
	Line         *float64   `json:"line,omitempty"` // spread/total point, nil for moneylines
	Price        float64    `json:"price"`          // decimal odds, > 1
	BookID       string     `json:"book_id"`
	Team         string     `json:"team,omitempty"` // team the selection rides on, if any
	EventStartAt time.Time  `json:"event_start_at"`
	ObservedAt   time.Time  `json:"observed_at"`
}

// Key returns the quote's book-level key.
func (q MarketQuote) Key() QuoteKey {
	return QuoteKey{EventID: q.EventID, Market: q.Market, Selection: q.Selection, BookID: q.BookID}
}

// Identity returns the quote's book-independent identity key.
func (q MarketQuote) Identity() IdentityKey {
	return IdentityKey{EventID: q.EventID, Market: q.Market, Selection: q.Selection}
}

// Age returns how old the quote is at the given instant.
func (q MarketQuote) Age(asOf time.Time) time.Duration {
	return asOf.Sub(q.ObservedAt)
}

// Leg is a single proposed bet, derived from a quote plus a probability
// estimate. Legs are transient: recomputed every evaluation cycle.
type Leg struct {
	EventID            string         `json:"event_id"`
	Sport              Sport          `json:"sport"`
	Market             MarketType     `json:"market"`
	Selection          string         `json:"selection"`
	Line               *float64       `json:"line,omitempty"`
	Price              float64        `json:"price"` // decimal odds
	BookID             string         `json:"book_id"`
	Team               string         `json:"team,omitempty"`
	EventStartAt       time.Time      `json:"event_start_at"`
	ModelProbability   float64        `json:"model_probability"`
	ImpliedProbability float64        `json:"implied_probability"`
	VigAdjusted        bool           `json:"vig_adjusted"`
	ModelBacked        bool           `json:"model_backed"` // false when falling back to implied probability
	EV                 float64        `json:"expected_value"`
	Confidence         float64        `json:"confidence"`
	Tier               ConfidenceTier `json:"confidence_tier"`
	ValueScore         float64        `json:"value_score"`
}

// Identity returns the leg's identity key.
func (l Leg) Identity() IdentityKey {
	return IdentityKey{EventID: l.EventID, Market: l.Market, Selection: l.Selection}
}

// IsValue reports whether the leg is a positive-EV opportunity.
func (l Leg) IsValue() bool {
	return l.EV > 0
}

// Combination is a parlay candidate: distinct legs that must all win.
type Combination struct {
	Sport               Sport   `json:"sport"`
	Legs                []Leg   `json:"legs"`
	CombinedPrice       float64 `json:"combined_price"`       // product of decimal prices
	RawProbability      float64 `json:"raw_probability"`      // product of leg probabilities
	CombinedProbability float64 `json:"combined_probability"` // raw probability after correlation penalty
	CorrelationPenalty  float64 `json:"correlation_penalty"`  // multiplicative factor in (0, 1]
	CombinedConfidence  float64 `json:"combined_confidence"`  // mean of leg confidences
	TotalEV             float64 `json:"total_ev"`
	QualityScore        float64 `json:"quality_score"`
}

// LegCount returns the number of legs.
func (c Combination) LegCount() int { return len(c.Legs) }

// BetTypeCount returns the number of distinct market types across legs.
func (c Combination) BetTypeCount() int {
	seen := make(map[MarketType]struct{}, len(c.Legs))
	for _, l := range c.Legs {
		seen[l.Market] = struct{}{}
	}
	return len(seen)
}

// EventCount returns the number of distinct events across legs.
func (c Combination) EventCount() int {
	seen := make(map[string]struct{}, len(c.Legs))
	for _, l := range c.Legs {
		seen[l.EventID] = struct{}{}
	}
	return len(seen)
}

// AvgEV returns the mean per-leg expected value.
func (c Combination) AvgEV() float64 {
	if len(c.Legs) == 0 {
		return 0
	}
	return c.TotalEV / float64(len(c.Legs))
}

// Signature returns a canonical identifier built from the sorted leg
// identities, used to collapse near-duplicate candidates.
func (c Combination) Signature() string {
	ids := make([]string, 0, len(c.Legs))
	for _, l := range c.Legs {
		ids = append(ids, l.Identity().String())
	}
	sortStrings(ids)
	return strings.Join(ids, ";")
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j] < ss[j-1]; j-- {
			ss[j], ss[j-1] = ss[j-1], ss[j]
		}
	}
}

// StakeRecommendation is the staking engine's sizing decision for one bet.
type StakeRecommendation struct {
	BankrollAtDecision float64 `json:"bankroll_at_decision"`
	KellyFraction      float64 `json:"kelly_fraction"`  // full Kelly f*, clamped to [0, 1]
	ScaledFraction     float64 `json:"scaled_fraction"` // f* after the fractional multiplier
	RecommendedPercent float64 `json:"recommended_percent"`
	RecommendedAmount  float64 `json:"recommended_amount"`
}

// NoBet reports whether the recommendation is a valid zero-stake result.
func (s StakeRecommendation) NoBet() bool {
	return s.RecommendedAmount <= 0
}

// MovementEvent records a significant price move for one key.
type MovementEvent struct {
	Key           QuoteKey    `json:"key"`
	Before        MarketQuote `json:"before"`
	After         MarketQuote `json:"after"`
	PercentChange float64     `json:"percent_change"` // signed, e.g. -9.4
	DetectedAt    time.Time   `json:"detected_at"`
}

// String renders a short human-readable description.
func (e MovementEvent) String() string {
	return fmt.Sprintf("%s moved %.1f%% (%.2f -> %.2f)",
		e.Key.String(), e.PercentChange, e.Before.Price, e.After.Price)
}
