// Package quotes provides the market snapshot store and quote history access.
package quotes

import (
	"sync"
	"sync/atomic"

	"github.com/oddstack/wagerline/internal/domain"
)

// Store holds the latest known quote per (event, market, selection, book)
// key, resolved last-timestamp-wins.
//
// Ingestion for different keys proceeds independently; same-key ingestion is
// resolved with a compare-and-swap loop, so no lock is ever held across I/O
// and readers always see a complete quote (the stored value is an immutable
// pointer, never mutated in place).
type Store struct {
	quotes sync.Map // domain.QuoteKey -> *domain.MarketQuote
	size   atomic.Int64
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Upsert applies a quote under last-timestamp-wins. It returns the quote it
// superseded (nil on first sight) and whether the update was applied. An
// update whose ObservedAt is not strictly newer than the stored quote is
// ignored, which makes ingestion idempotent under duplicate or out-of-order
// delivery.
func (s *Store) Upsert(q domain.MarketQuote) (prev *domain.MarketQuote, applied bool) {
	key := q.Key()
	stored := q // copy; callers keep their value

	for {
		cur, ok := s.quotes.Load(key)
		if !ok {
			if _, loaded := s.quotes.LoadOrStore(key, &stored); !loaded {
				s.size.Add(1)
				return nil, true
			}
			continue // lost the insert race, retry as an update
		}

		curQuote := cur.(*domain.MarketQuote)
		if !q.ObservedAt.After(curQuote.ObservedAt) {
			return curQuote, false
		}
		if s.quotes.CompareAndSwap(key, cur, &stored) {
			return curQuote, true
		}
	}
}

// Get returns the latest quote for a key.
func (s *Store) Get(key domain.QuoteKey) (domain.MarketQuote, bool) {
	v, ok := s.quotes.Load(key)
	if !ok {
		return domain.MarketQuote{}, false
	}
	return *v.(*domain.MarketQuote), true
}

// Snapshot returns a point-in-time copy of every stored quote.
func (s *Store) Snapshot() []domain.MarketQuote {
	out := make([]domain.MarketQuote, 0, s.size.Load())
	s.quotes.Range(func(_, v any) bool {
		out = append(out, *v.(*domain.MarketQuote))
		return true
	})
	return out
}

// SnapshotBySport returns the stored quotes for one sport.
func (s *Store) SnapshotBySport(sport domain.Sport) []domain.MarketQuote {
	var out []domain.MarketQuote
	s.quotes.Range(func(_, v any) bool {
		q := v.(*domain.MarketQuote)
		if q.Sport == sport {
			out = append(out, *q)
		}
		return true
	})
	return out
}

// MarketOutcomes returns every stored quote for the mutually exclusive
// outcomes of one market at one book. The edge evaluator uses the full set
// to strip vig.
func (s *Store) MarketOutcomes(eventID string, market domain.MarketType, bookID string) []domain.MarketQuote {
	var out []domain.MarketQuote
	s.quotes.Range(func(k, v any) bool {
		key := k.(domain.QuoteKey)
		if key.EventID == eventID && key.Market == market && key.BookID == bookID {
			out = append(out, *v.(*domain.MarketQuote))
		}
		return true
	})
	return out
}

// Len returns the number of distinct keys stored.
func (s *Store) Len() int {
	return int(s.size.Load())
}
