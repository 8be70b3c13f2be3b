package modelprob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddstack/wagerline/internal/domain"
)

var testKey = domain.IdentityKey{
	EventID:   "evt1",
	Market:    domain.MarketMoneyline,
	Selection: "Celtics",
}

func TestEstimate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "evt1", r.URL.Query().Get("event_id"))
		_, _ = w.Write([]byte(`{"probability": 0.57, "confidence": 0.74}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	est, err := c.Estimate(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, est)
	assert.Equal(t, 0.57, est.Probability)
	assert.Equal(t, 0.74, est.Confidence)
}

func TestEstimate_AbsenceDegrades(t *testing.T) {
	// No URL configured.
	c := NewClient("", zerolog.Nop())
	est, err := c.Estimate(context.Background(), testKey)
	assert.NoError(t, err)
	assert.Nil(t, est)

	// Provider down.
	c = NewClient("http://127.0.0.1:1", zerolog.Nop())
	est, err = c.Estimate(context.Background(), testKey)
	assert.NoError(t, err)
	assert.Nil(t, est)
}

func TestEstimate_NotFoundAndBadValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("selection") {
		case "Celtics":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{"probability": 1.4}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())

	est, err := c.Estimate(context.Background(), testKey)
	assert.NoError(t, err)
	assert.Nil(t, est)

	other := testKey
	other.Selection = "Lakers"
	est, err = c.Estimate(context.Background(), other)
	assert.NoError(t, err)
	assert.Nil(t, est)
}

func TestStaticProvider(t *testing.T) {
	s := &Static{Estimates: map[domain.IdentityKey]Estimate{
		testKey: {Probability: 0.6, Confidence: 0.8},
	}}

	est, err := s.Estimate(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, est)
	assert.Equal(t, 0.6, est.Probability)

	missing := testKey
	missing.EventID = "other"
	est, err = s.Estimate(context.Background(), missing)
	require.NoError(t, err)
	assert.Nil(t, est)
}
