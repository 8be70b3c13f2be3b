// Package movement watches the quote stream for significant price moves.
package movement

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/events"
)

// Events the monitor keeps for the API's recent-movements listing.
const recentCapacity = 100

// Monitor detects significant moves per quote key.
//
// Each key carries a reference quote: the last quote that produced an event
// (or the first ever seen). Every update is measured against that reference,
// so a drift that crosses the threshold in small steps still fires exactly
// once, at the step that crosses it. The reference advances only on
// emission.
//
// Change is measured on the profit share of the payout, (d-1)/d, which
// weights a move at long odds and at short odds comparably; raw decimal
// deltas overstate moves on longshots.
type Monitor struct {
	threshold float64 // percent
	events    *events.Manager
	log       zerolog.Logger

	mu     sync.Mutex
	refs   map[domain.QuoteKey]domain.MarketQuote
	recent []domain.MovementEvent
	subs   []chan domain.MovementEvent
}

// NewMonitor creates a monitor with the configured significance threshold.
func NewMonitor(cfg domain.CycleConfig, em *events.Manager, log zerolog.Logger) *Monitor {
	return &Monitor{
		threshold: cfg.SignificanceThreshold,
		events:    em,
		log:       log.With().Str("component", "movement_monitor").Logger(),
		refs:      make(map[domain.QuoteKey]domain.MarketQuote),
	}
}

// Subscribe returns a channel receiving future movement events. Delivery is
// best-effort: a subscriber that falls behind loses events rather than
// blocking ingestion.
func (m *Monitor) Subscribe() <-chan domain.MovementEvent {
	ch := make(chan domain.MovementEvent, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Observe feeds one applied quote update. It returns the emitted event, if
// the move was significant.
func (m *Monitor) Observe(q domain.MarketQuote) (*domain.MovementEvent, bool) {
	key := q.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.refs[key]
	if !ok {
		m.refs[key] = q
		return nil, false
	}
	// Duplicates and out-of-order arrivals are ignored.
	if !q.ObservedAt.After(ref.ObservedAt) {
		return nil, false
	}

	change := profitShareChange(ref.Price, q.Price)
	if abs(change) < m.threshold {
		return nil, false
	}

	ev := domain.MovementEvent{
		Key:           key,
		Before:        ref,
		After:         q,
		PercentChange: change,
		DetectedAt:    q.ObservedAt,
	}
	m.refs[key] = q
	m.record(ev)
	m.publish(ev)

	m.log.Info().
		Str("key", key.String()).
		Float64("percent_change", change).
		Float64("before", ref.Price).
		Float64("after", q.Price).
		Msg("Significant odds movement")
	m.events.Emit(events.MovementDetected, "movement", map[string]interface{}{
		"key":            key.String(),
		"percent_change": change,
		"before_price":   ref.Price,
		"after_price":    q.Price,
	})
	return &ev, true
}

// Recent returns the latest movement events, newest first.
func (m *Monitor) Recent() []domain.MovementEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.MovementEvent, len(m.recent))
	for i, ev := range m.recent {
		out[len(m.recent)-1-i] = ev
	}
	return out
}

func (m *Monitor) record(ev domain.MovementEvent) {
	m.recent = append(m.recent, ev)
	if len(m.recent) > recentCapacity {
		m.recent = m.recent[len(m.recent)-recentCapacity:]
	}
}

func (m *Monitor) publish(ev domain.MovementEvent) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// profitShareChange returns the signed percent change of the profit share
// (d-1)/d between two decimal prices.
func profitShareChange(before, after float64) float64 {
	b := (before - 1.0) / before
	a := (after - 1.0) / after
	if b == 0 {
		return 0
	}
	return (a - b) / b * 100.0
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
