package cycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/quotes"
)

// Scanner is the ingest-only path: it refreshes the snapshot store and
// feeds the movement monitor without evaluating or dispatching. The
// movement scan job and the streaming feed both go through it, so movement
// detection runs independently of, and never blocks, evaluation cycles.
type Scanner struct {
	sports  []domain.Sport
	timeout time.Duration
	store   *quotes.Store
	history *quotes.HistoryRepository
	feed    QuoteSource
	monitor *movement.Monitor
	log     zerolog.Logger
}

// NewScanner creates a scanner.
func NewScanner(cfg domain.CycleConfig, timeout time.Duration, store *quotes.Store, history *quotes.HistoryRepository, feed QuoteSource, monitor *movement.Monitor, log zerolog.Logger) *Scanner {
	return &Scanner{
		sports:  cfg.Sports,
		timeout: timeout,
		store:   store,
		history: history,
		feed:    feed,
		monitor: monitor,
		log:     log.With().Str("service", "movement_scanner").Logger(),
	}
}

// Scan fetches and ingests one round of quotes. Per-sport failures are
// logged and skipped.
func (s *Scanner) Scan(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, sport := range s.sports {
		fetched, err := s.feed.FetchQuotes(ctx, sport)
		if err != nil {
			s.log.Warn().Err(err).Str("sport", string(sport)).Msg("Movement scan skipping sport")
			continue
		}
		for _, q := range fetched {
			s.Ingest(q)
		}
	}
	return ctx.Err()
}

// Ingest applies one quote to the store, the monitor and history. The
// streaming feed calls this per pushed quote.
func (s *Scanner) Ingest(q domain.MarketQuote) {
	if _, applied := s.store.Upsert(q); !applied {
		return
	}
	s.monitor.Observe(q)
	if err := s.history.Upsert(q); err != nil {
		s.log.Warn().Err(err).Str("key", q.Key().String()).Msg("Failed to persist quote")
	}
}
