// Package oddsfeed fetches market quotes from the odds provider.
package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// sportKeys maps sports to the provider's sport keys.
var sportKeys = map[domain.Sport]string{
	domain.SportNBA:    "basketball_nba",
	domain.SportNFL:    "americanfootball_nfl",
	domain.SportMLB:    "baseball_mlb",
	domain.SportNHL:    "icehockey_nhl",
	domain.SportUFC:    "mma_mixed_martial_arts",
	domain.SportBoxing: "boxing_boxing",
}

// marketKeys maps the provider's market keys to market types.
var marketKeys = map[string]domain.MarketType{
	"h2h":               domain.MarketMoneyline,
	"spreads":           domain.MarketSpread,
	"totals":            domain.MarketTotal,
	"alternate_spreads": domain.MarketAlternateSpread,
	"alternate_totals":  domain.MarketAlternateTotal,
	"team_totals":       domain.MarketTeamTotal,
}

// Client polls the odds API for quotes.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates an odds feed client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "oddsfeed").Logger(),
	}
}

// Provider response shapes.
type apiEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []apiBookmaker `json:"bookmakers"`
}

type apiBookmaker struct {
	Key        string      `json:"key"`
	LastUpdate time.Time   `json:"last_update"`
	Markets    []apiMarket `json:"markets"`
}

type apiMarket struct {
	Key        string       `json:"key"`
	LastUpdate time.Time    `json:"last_update"`
	Outcomes   []apiOutcome `json:"outcomes"`
}

type apiOutcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"` // American odds
	Point *float64 `json:"point,omitempty"`
}

// FetchQuotes fetches the current quotes for one sport. Failures retry up to
// three times with exponential backoff; a provider that stays unreachable
// yields ErrExternalUnavailable and the caller skips the sport this cycle.
func (c *Client) FetchQuotes(ctx context.Context, sport domain.Sport) ([]domain.MarketQuote, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sport %q", domain.ErrBadQuote, sport)
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", "us")
	q.Set("markets", "h2h,spreads,totals")
	q.Set("oddsFormat", "american")
	endpoint := fmt.Sprintf("%s/sports/%s/odds?%s", c.baseURL, key, q.Encode())

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			c.log.Warn().
				Str("sport", string(sport)).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Err(lastErr).
				Msg("Retrying odds fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		events, err := c.fetchOnce(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		return c.transform(sport, events), nil
	}
	return nil, fmt.Errorf("%w: odds feed for %s after %d attempts: %v",
		domain.ErrExternalUnavailable, sport, maxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]apiEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("odds feed returned status %d", resp.StatusCode)
	}

	var events []apiEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to decode odds response: %w", err)
	}
	return events, nil
}

// transform flattens the provider's nested shape into quotes. Outcomes with
// unusable prices are skipped, never fatal.
func (c *Client) transform(sport domain.Sport, events []apiEvent) []domain.MarketQuote {
	var out []domain.MarketQuote
	for _, ev := range events {
		for _, book := range ev.Bookmakers {
			for _, market := range book.Markets {
				marketType, ok := marketKeys[market.Key]
				if !ok {
					continue
				}
				observed := market.LastUpdate
				if observed.IsZero() {
					observed = book.LastUpdate
				}
				for _, o := range market.Outcomes {
					price, err := domain.AmericanToDecimal(o.Price)
					if err != nil {
						c.log.Debug().
							Str("event", ev.ID).
							Str("outcome", o.Name).
							Err(err).
							Msg("Skipping outcome with unusable price")
						continue
					}
					out = append(out, domain.MarketQuote{
						EventID:      ev.ID,
						Sport:        sport,
						Market:       marketType,
						Selection:    o.Name,
						Line:         o.Point,
						Price:        price,
						BookID:       book.Key,
						Team:         outcomeTeam(marketType, o.Name, ev),
						EventStartAt: ev.CommenceTime,
						ObservedAt:   observed,
					})
				}
			}
		}
	}
	return out
}

// outcomeTeam resolves which team a selection rides on. Totals ride on no
// team; moneyline and spread selections name one.
func outcomeTeam(market domain.MarketType, selection string, ev apiEvent) string {
	if market.Family() == domain.FamilyTotals {
		return ""
	}
	if selection == ev.HomeTeam || selection == ev.AwayTeam {
		return selection
	}
	return ""
}
