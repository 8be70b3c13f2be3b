// Package notify formats and delivers recommendation payloads.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// ChannelKind enumerates delivery channels.
type ChannelKind string

const (
	ChannelConsole ChannelKind = "console"
	ChannelWebhook ChannelKind = "webhook"
)

// Payload is a fully-formed recommendation ready for delivery.
type Payload struct {
	Kind        string                     `json:"kind"` // single or parlay
	Sport       domain.Sport               `json:"sport"`
	Legs        []domain.Leg               `json:"legs"`
	Combination *domain.Combination        `json:"combination,omitempty"`
	Stake       domain.StakeRecommendation `json:"stake"`
	Rationale   string                     `json:"rationale"`
	IssuedAt    time.Time                  `json:"issued_at"`
}

// Channel delivers payloads. Implementations own formatting and transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// SinglePayload builds the payload for one standalone leg.
func SinglePayload(leg domain.Leg, stake domain.StakeRecommendation, issuedAt time.Time) Payload {
	return Payload{
		Kind:      "single",
		Sport:     leg.Sport,
		Legs:      []domain.Leg{leg},
		Stake:     stake,
		Rationale: fmt.Sprintf("%.1f%% EV, %s confidence", leg.EV*100, leg.Tier),
		IssuedAt:  issuedAt,
	}
}

// ParlayPayload builds the payload for a combination.
func ParlayPayload(c domain.Combination, stake domain.StakeRecommendation, issuedAt time.Time) Payload {
	return Payload{
		Kind:        "parlay",
		Sport:       c.Sport,
		Legs:        c.Legs,
		Combination: &c,
		Stake:       stake,
		Rationale: fmt.Sprintf("%d legs across %d events, %d bet types, quality %.2f",
			c.LegCount(), c.EventCount(), c.BetTypeCount(), c.QualityScore),
		IssuedAt: issuedAt,
	}
}

// FormatText renders a payload as a short human-readable block. Prices show
// as American odds, the convention bettors read.
func FormatText(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s recommendation\n", p.Sport, p.Kind)
	for _, l := range p.Legs {
		fmt.Fprintf(&b, "  %s %s %s @ %s", l.EventID, l.Market, l.Selection, formatAmerican(l.Price))
		if l.Line != nil {
			fmt.Fprintf(&b, " (line %+.1f)", *l.Line)
		}
		fmt.Fprintf(&b, " [EV %+.1f%%]\n", l.EV*100)
	}
	if p.Combination != nil {
		fmt.Fprintf(&b, "  combined %s, win probability %.1f%%\n",
			formatAmerican(p.Combination.CombinedPrice), p.Combination.CombinedProbability*100)
	}
	if p.Stake.NoBet() {
		b.WriteString("  stake: no bet\n")
	} else {
		fmt.Fprintf(&b, "  stake: $%.2f (%.2f%% of bankroll)\n",
			p.Stake.RecommendedAmount, p.Stake.RecommendedPercent*100)
	}
	fmt.Fprintf(&b, "  %s", p.Rationale)
	return b.String()
}

func formatAmerican(decimal float64) string {
	american, err := domain.DecimalToAmerican(decimal)
	if err != nil {
		return fmt.Sprintf("%.2f", decimal)
	}
	return fmt.Sprintf("%+.0f", american)
}

// Console logs payloads through the application logger.
type Console struct {
	log zerolog.Logger
}

// NewConsole creates the console channel.
func NewConsole(log zerolog.Logger) *Console {
	return &Console{log: log.With().Str("channel", string(ChannelConsole)).Logger()}
}

// Name returns the channel name.
func (c *Console) Name() string { return string(ChannelConsole) }

// Send logs the formatted payload.
func (c *Console) Send(_ context.Context, p Payload) error {
	c.log.Info().
		Str("kind", p.Kind).
		Str("sport", string(p.Sport)).
		Float64("stake", p.Stake.RecommendedAmount).
		Msg(FormatText(p))
	return nil
}
