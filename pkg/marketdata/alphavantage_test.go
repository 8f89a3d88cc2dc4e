package marketdata

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphaVantageGlobalQuote(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`{"Global Quote":{"01. symbol":"IBM","05. price":"191.2500"}}`))
	})
	a := NewAlphaVantage("demo", WithBaseURL(srv.URL), WithRateLimit(0, 0), WithClock(clock))

	q, err := a.GlobalQuote(context.Background(), "IBM")
	require.NoError(t, err)
	require.NotNil(t, q.Price)
	assert.Equal(t, 191.25, *q.Price)
	assert.Equal(t, fixedNow, q.Timestamp)
}

func TestAlphaVantageErrorPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"note", `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, ErrRateLimited},
		{"information", `{"Information":"rate limit"}`, ErrRateLimited},
		{"error message", `{"Error Message":"Invalid API call"}`, ErrNoData},
		{"empty quote", `{"Global Quote":{}}`, ErrNoData},
		{"bad price", `{"Global Quote":{"05. price":"abc"}}`, ErrNoData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockHTTPClient{status: http.StatusOK, body: tc.body}
			a := NewAlphaVantage("key", WithHTTPClient(client), WithRateLimit(0, 0))
			q, err := a.GlobalQuote(context.Background(), "IBM")
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, q.Price)
		})
	}
}

func TestAlphaVantageWithoutKey(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusOK}
	a := NewAlphaVantage("  ", WithHTTPClient(client))
	assert.False(t, a.HasKey())

	_, err := a.GlobalQuote(context.Background(), "IBM")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Empty(t, client.urls)
}

func TestAlphaVantageDefaultRateLimit(t *testing.T) {
	a := NewAlphaVantage("key")
	require.NotNil(t, a.limiter)
	assert.Equal(t, alphaVantageRequests, a.limiter.Burst())
	assert.InDelta(t, float64(alphaVantageRequests)/alphaVantagePeriod.Seconds(), float64(a.limiter.Limit()), 1e-9)
}
