// Package marketdata provides clients for the public quote providers used by
// the tracker: Yahoo Finance, Stooq and Alpha Vantage.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Provider errors. Use errors.Is() to check for these conditions.
var (
	// ErrNoData indicates the provider answered but carried no usable price.
	ErrNoData = errors.New("no price data available")
	// ErrRateLimited indicates the provider refused the call because of quota.
	ErrRateLimited = errors.New("provider rate limit reached")
	// ErrMissingAPIKey indicates a keyed provider was called without a key.
	ErrMissingAPIKey = errors.New("api key is required")
	// ErrHTTPStatus wraps non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// maxResponseSize limits provider responses to 1MB.
const maxResponseSize = 1 << 20

// DefaultTimeout is applied to the default http.Client of every provider.
const DefaultTimeout = 15 * time.Second

// browserHeaders are sent to endpoints that reject non-browser user agents.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Accept":          "application/json,text/plain,*/*",
	"Accept-Language": "en-US,en;q=0.9",
}

// HTTPDoer is an interface for making HTTP requests. It enables dependency
// injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Quote is the latest known price of a single instrument.
type Quote struct {
	Symbol       string    `json:"symbol" msgpack:"symbol"`
	Price        *float64  `json:"price" msgpack:"price"`
	Currency     string    `json:"currency,omitempty" msgpack:"currency"`
	Timestamp    time.Time `json:"timestamp" msgpack:"timestamp"`
	SourceSymbol string    `json:"source_symbol,omitempty" msgpack:"source_symbol"`
}

// HasPrice reports whether the quote carries a price.
func (q Quote) HasPrice() bool {
	return q.Price != nil
}

// Option configures a provider client.
type Option func(*base)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(b *base) {
		if client != nil {
			b.client = client
		}
	}
}

// WithBaseURL points the client at another host, mostly for tests.
func WithBaseURL(baseURL string) Option {
	return func(b *base) {
		b.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(timeout time.Duration) Option {
	return func(b *base) {
		if hc, ok := b.client.(*http.Client); ok && timeout > 0 {
			hc.Timeout = timeout
		}
	}
}

// WithRateLimit caps outgoing requests to n per period.
func WithRateLimit(n int, period time.Duration) Option {
	return func(b *base) {
		if n <= 0 || period <= 0 {
			b.limiter = nil
			return
		}
		b.limiter = rate.NewLimiter(rate.Every(period/time.Duration(n)), n)
	}
}

// WithClock injects the time source used for quote timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

type base struct {
	baseURL string
	client  HTTPDoer
	logger  zerolog.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func newBase(baseURL string, opts []Option) base {
	b := base{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// NormalizeSymbol strips the cashtag marker and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(symbol, "$", "")))
}

func floatPtr(v float64) *float64 {
	return &v
}
