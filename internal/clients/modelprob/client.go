// Package modelprob queries the probability model provider. The provider is
// optional: when it is absent or failing the evaluator degrades to implied
// probabilities, it never hard-fails a cycle.
package modelprob

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

// Estimate is the provider's answer for one selection.
type Estimate struct {
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
}

// Provider supplies model probabilities. Estimate returns (nil, nil) when
// no estimate exists for the key.
type Provider interface {
	Estimate(ctx context.Context, key domain.IdentityKey) (*Estimate, error)
}

// Client is the HTTP provider implementation.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a provider client. An empty baseURL yields a client
// that always reports no estimate.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("client", "modelprob").Logger(),
	}
}

// Estimate fetches the model probability for one selection. Provider
// failures degrade to "no estimate" with a log line.
func (c *Client) Estimate(ctx context.Context, key domain.IdentityKey) (*Estimate, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("event_id", key.EventID)
	q.Set("market", string(key.Market))
	q.Set("selection", key.Selection)
	endpoint := fmt.Sprintf("%s/probability?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("key", key.String()).Msg("Model provider unreachable, degrading to implied probability")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode).Str("key", key.String()).Msg("Model provider error, degrading to implied probability")
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}
	var est Estimate
	if err := json.Unmarshal(body, &est); err != nil {
		c.log.Debug().Err(err).Msg("Malformed model provider response")
		return nil, nil
	}
	if est.Probability <= 0 || est.Probability >= 1 {
		return nil, nil
	}
	return &est, nil
}

// Static is a fixed-table provider, used by the backtester to replay
// historical model estimates.
type Static struct {
	Estimates map[domain.IdentityKey]Estimate
}

// Estimate looks up the table.
func (s *Static) Estimate(_ context.Context, key domain.IdentityKey) (*Estimate, error) {
	if est, ok := s.Estimates[key]; ok {
		e := est
		return &e, nil
	}
	return nil, nil
}
