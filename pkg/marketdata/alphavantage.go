package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAlphaVantageURL is the Alpha Vantage API host.
const DefaultAlphaVantageURL = "https://www.alphavantage.co"

// Free tier quota.
const (
	alphaVantageRequests = 5
	alphaVantagePeriod   = time.Minute
)

// AlphaVantage calls the GLOBAL_QUOTE function of Alpha Vantage.
type AlphaVantage struct {
	base
	apiKey string
}

// NewAlphaVantage creates an Alpha Vantage client limited to the free-tier quota
// unless WithRateLimit overrides it.
func NewAlphaVantage(apiKey string, opts ...Option) *AlphaVantage {
	opts = append([]Option{WithRateLimit(alphaVantageRequests, alphaVantagePeriod)}, opts...)
	return &AlphaVantage{base: newBase(DefaultAlphaVantageURL, opts), apiKey: strings.TrimSpace(apiKey)}
}

// HasKey reports whether an API key is configured.
func (a *AlphaVantage) HasKey() bool {
	return a.apiKey != ""
}

// GlobalQuote returns the latest price for a symbol. Rate limit notes and
// error payloads are reported as ErrRateLimited and ErrNoData.
func (a *AlphaVantage) GlobalQuote(ctx context.Context, symbol string) (Quote, error) {
	quote := Quote{Symbol: symbol, Timestamp: a.now().UTC()}
	if !a.HasKey() {
		return quote, ErrMissingAPIKey
	}
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)
	body, err := a.get(ctx, fmt.Sprintf("%s/query?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return quote, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return quote, fmt.Errorf("decode alpha vantage payload: %w", err)
	}
	if _, ok := payload["Note"]; ok {
		return quote, ErrRateLimited
	}
	if _, ok := payload["Information"]; ok {
		return quote, ErrRateLimited
	}
	if msg, ok := payload["Error Message"]; ok {
		return quote, fmt.Errorf("%w: %s", ErrNoData, string(msg))
	}

	raw, ok := payload["Global Quote"]
	if !ok {
		raw = payload["Global quote"]
	}
	var fields map[string]string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return quote, fmt.Errorf("decode global quote: %w", err)
		}
	}
	value := fields["05. price"]
	if value == "" {
		value = fields["05. Price"]
	}
	if value == "" {
		return quote, ErrNoData
	}
	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return quote, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	quote.Price = floatPtr(price)
	return quote, nil
}
