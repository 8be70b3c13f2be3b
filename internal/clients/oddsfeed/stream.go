package oddsfeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/oddstack/wagerline/internal/domain"
)

const (
	dialTimeout          = 30 * time.Second
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// streamQuote is the wire shape of one pushed quote.
type streamQuote struct {
	EventID       string    `json:"event_id"`
	Sport         string    `json:"sport"`
	Market        string    `json:"market"`
	Selection     string    `json:"selection"`
	Line          *float64  `json:"line,omitempty"`
	PriceAmerican float64   `json:"price_american"`
	Book          string    `json:"book"`
	Team          string    `json:"team,omitempty"`
	EventStartAt  time.Time `json:"event_start_at"`
	ObservedAt    time.Time `json:"observed_at"`
}

// QuoteHandler receives each streamed quote.
type QuoteHandler func(domain.MarketQuote)

// Stream is the websocket push client. When the feed offers push delivery
// it replaces most polling; a dropped connection reconnects with
// exponential backoff and polling covers the gap.
type Stream struct {
	url     string
	handler QuoteHandler
	log     zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	stopChan  chan struct{}
	stopped   bool
	connected bool
}

// NewStream creates a streaming client. The handler is invoked on the read
// loop; it must hand off quickly (the snapshot store's upsert qualifies).
func NewStream(url string, handler QuoteHandler, log zerolog.Logger) *Stream {
	return &Stream{
		url:      url,
		handler:  handler,
		log:      log.With().Str("client", "oddsfeed_stream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start connects and runs the read loop until Stop or the context ends.
// The initial connection failing is not fatal; reconnection runs in the
// background.
func (s *Stream) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Stream) run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			attempt++
			if attempt > maxReconnectAttempts {
				s.log.Error().Int("attempts", attempt).Msg("Giving up on odds stream, polling remains active")
				return
			}
			delay := reconnectDelay(attempt)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("Odds stream connection failed")
			select {
			case <-time.After(delay):
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		attempt = 0
		s.readLoop(ctx)
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.log.Info().Str("url", s.url).Msg("Odds stream connected")
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Odds stream read failed, reconnecting")
			return
		}

		var msg streamQuote
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("Skipping malformed stream message")
			continue
		}
		quote, err := msg.toQuote()
		if err != nil {
			s.log.Debug().Err(err).Msg("Skipping stream quote with unusable price")
			continue
		}
		s.handler(quote)
	}
}

// Stop closes the connection and ends the read loop.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopChan)
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}

// Connected reports whether the stream currently holds a connection.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (m streamQuote) toQuote() (domain.MarketQuote, error) {
	price, err := domain.AmericanToDecimal(m.PriceAmerican)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	return domain.MarketQuote{
		EventID:      m.EventID,
		Sport:        domain.Sport(m.Sport),
		Market:       domain.MarketType(m.Market),
		Selection:    m.Selection,
		Line:         m.Line,
		Price:        price,
		BookID:       m.Book,
		Team:         m.Team,
		EventStartAt: m.EventStartAt,
		ObservedAt:   m.ObservedAt,
	}, nil
}

func reconnectDelay(attempt int) time.Duration {
	delay := baseReconnectDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	return delay
}
