package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"investtracker/pkg/marketdata"
)

// Service names used for the circuit breaker and logs.
const (
	serviceYahoo      = "yahoo"
	serviceStooq      = "stooq"
	serviceAlpha      = "alpha_vantage"
	serviceAlphaCache = "alpha_vantage_cache"
)

// ChartClient returns the latest price from a chart series.
type ChartClient interface {
	Chart(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// SuffixClient probes exchange suffixes for a price.
type SuffixClient interface {
	Quote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// KeyedClient is a provider that needs an API key.
type KeyedClient interface {
	HasKey() bool
	GlobalQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// LastValueCache keeps the last good quote of the keyed provider.
type LastValueCache interface {
	LoadQuote(ctx context.Context, provider Provider, symbol string) (marketdata.Quote, bool, error)
	SaveQuote(ctx context.Context, provider Provider, quote marketdata.Quote) error
}

// QuoteRequest asks for the price of one market symbol.
type QuoteRequest struct {
	// Symbol is the market symbol for the configured provider.
	Symbol string
	// Fallback is the symbol handed to the suffix-probing provider when the
	// keyed provider cannot answer. Empty means Symbol.
	Fallback string
	// Commodity routes the request to the suffix-probing provider.
	Commodity bool
}

// QuoteAggregatorOptions configures a QuoteAggregator.
type QuoteAggregatorOptions struct {
	Logger        zerolog.Logger
	Chart         ChartClient
	Suffix        SuffixClient
	Keyed         KeyedClient
	LastValues    LastValueCache
	CacheTTL      time.Duration
	FailThreshold int
	FailWindow    time.Duration
	Cooldown      time.Duration
	Now           func() time.Time
}

// QuoteAggregator fetches quotes through per-symbol fallback chains.
type QuoteAggregator struct {
	logger        zerolog.Logger
	chart         ChartClient
	suffix        SuffixClient
	keyed         KeyedClient
	lastValues    LastValueCache
	failThreshold int
	failWindow    time.Duration
	cooldown      time.Duration
	now           func() time.Time

	cache        *cache.Cache
	circuitMu    sync.Mutex
	serviceState map[string]*serviceState
}

type serviceState struct {
	failCount     int
	firstFailAt   time.Time
	cooldownUntil time.Time
}

// NewQuoteAggregator creates a QuoteAggregator.
func NewQuoteAggregator(opts QuoteAggregatorOptions) *QuoteAggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := defaultDuration(opts.CacheTTL, 30*time.Second)
	return &QuoteAggregator{
		logger:        opts.Logger,
		chart:         opts.Chart,
		suffix:        opts.Suffix,
		keyed:         opts.Keyed,
		lastValues:    opts.LastValues,
		failThreshold: defaultInt(opts.FailThreshold, 3),
		failWindow:    defaultDuration(opts.FailWindow, 60*time.Second),
		cooldown:      defaultDuration(opts.Cooldown, 120*time.Second),
		now:           now,
		cache:         cache.New(ttl, 2*ttl),
		serviceState:  map[string]*serviceState{},
	}
}

type fetchAttempt struct {
	name   string
	symbol string
	fn     func(ctx context.Context) (marketdata.Quote, error)
}

func (f fetchAttempt) cacheKey() string {
	return f.name + "|" + f.symbol
}

// Fetch returns a quote for every requested symbol. A symbol that no provider
// could price has a nil Price. Symbols are fetched one after another.
func (a *QuoteAggregator) Fetch(ctx context.Context, provider Provider, reqs []QuoteRequest) map[string]marketdata.Quote {
	out := make(map[string]marketdata.Quote, len(reqs))
	for _, req := range reqs {
		req.Symbol = normalizeSymbol(req.Symbol)
		if req.Symbol == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		out[req.Symbol] = a.fetchOne(ctx, req, a.buildAttempts(provider, req))
	}
	return out
}

// FetchSuffix prices a single symbol through the suffix-probing provider only.
func (a *QuoteAggregator) FetchSuffix(ctx context.Context, symbol string) marketdata.Quote {
	req := QuoteRequest{Symbol: normalizeSymbol(symbol)}
	return a.fetchOne(ctx, req, []fetchAttempt{a.suffixAttempt(req.Symbol)})
}

func (a *QuoteAggregator) fetchOne(ctx context.Context, req QuoteRequest, attempts []fetchAttempt) marketdata.Quote {
	var errorsList []string
	for _, attempt := range attempts {
		if cached, ok := a.cache.Get(attempt.cacheKey()); ok {
			q := cached.(marketdata.Quote)
			q.Symbol = req.Symbol
			return q
		}
		if !a.serviceAvailable(attempt.name) {
			errorsList = append(errorsList, fmt.Sprintf("%s: circuit open", attempt.name))
			continue
		}
		q, err := attempt.fn(ctx)
		if err == nil && q.HasPrice() {
			a.recordServiceSuccess(attempt.name)
			q.Symbol = req.Symbol
			a.cache.SetDefault(attempt.cacheKey(), q)
			return q
		}
		if err == nil {
			err = marketdata.ErrNoData
		}
		errorsList = append(errorsList, fmt.Sprintf("%s: %v", attempt.name, err))
		if isServiceFailure(err) {
			a.recordServiceFailure(attempt.name)
		}
	}
	if len(errorsList) > 0 {
		a.logger.Debug().Str("symbol", req.Symbol).Str("errors", strings.Join(errorsList, "; ")).Msg("quote unavailable")
	}
	return marketdata.Quote{Symbol: req.Symbol, Timestamp: a.now().UTC()}
}

func (a *QuoteAggregator) buildAttempts(provider Provider, req QuoteRequest) []fetchAttempt {
	fallback := req.Fallback
	if fallback == "" {
		fallback = req.Symbol
	}
	switch provider {
	case ProviderYahoo:
		if req.Commodity {
			return []fetchAttempt{a.suffixAttempt(req.Symbol)}
		}
		return []fetchAttempt{a.chartAttempt(req.Symbol)}
	case ProviderAlphaVantage:
		if a.keyed == nil || !a.keyed.HasKey() {
			return []fetchAttempt{a.suffixAttempt(fallback)}
		}
		return []fetchAttempt{
			a.keyedAttempt(req.Symbol),
			a.lastValueAttempt(req.Symbol),
			a.suffixAttempt(fallback),
		}
	default:
		return []fetchAttempt{a.suffixAttempt(req.Symbol)}
	}
}

func (a *QuoteAggregator) chartAttempt(symbol string) fetchAttempt {
	return fetchAttempt{serviceYahoo, symbol, func(ctx context.Context) (marketdata.Quote, error) {
		if a.chart == nil {
			return marketdata.Quote{}, errProviderMissing
		}
		return a.chart.Chart(ctx, symbol)
	}}
}

func (a *QuoteAggregator) suffixAttempt(symbol string) fetchAttempt {
	return fetchAttempt{serviceStooq, symbol, func(ctx context.Context) (marketdata.Quote, error) {
		if a.suffix == nil {
			return marketdata.Quote{}, errProviderMissing
		}
		return a.suffix.Quote(ctx, symbol)
	}}
}

func (a *QuoteAggregator) keyedAttempt(symbol string) fetchAttempt {
	return fetchAttempt{serviceAlpha, symbol, func(ctx context.Context) (marketdata.Quote, error) {
		q, err := a.keyed.GlobalQuote(ctx, symbol)
		if err != nil || !q.HasPrice() || a.lastValues == nil {
			return q, err
		}
		if err := a.lastValues.SaveQuote(ctx, ProviderAlphaVantage, q); err != nil {
			a.logger.Warn().Err(err).Str("symbol", symbol).Msg("save last known quote failed")
		}
		return q, nil
	}}
}

func (a *QuoteAggregator) lastValueAttempt(symbol string) fetchAttempt {
	return fetchAttempt{serviceAlphaCache, symbol, func(ctx context.Context) (marketdata.Quote, error) {
		if a.lastValues == nil {
			return marketdata.Quote{}, marketdata.ErrNoData
		}
		q, ok, err := a.lastValues.LoadQuote(ctx, ProviderAlphaVantage, symbol)
		if err != nil {
			return marketdata.Quote{}, err
		}
		if !ok {
			return marketdata.Quote{}, marketdata.ErrNoData
		}
		return q, nil
	}}
}

var errProviderMissing = errors.New("provider not configured")

// isServiceFailure reports whether err says something about the service
// rather than the symbol.
func isServiceFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, marketdata.ErrNoData),
		errors.Is(err, marketdata.ErrMissingAPIKey),
		errors.Is(err, errProviderMissing),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (a *QuoteAggregator) serviceAvailable(service string) bool {
	a.circuitMu.Lock()
	defer a.circuitMu.Unlock()
	state, ok := a.serviceState[service]
	if !ok {
		return true
	}
	return a.now().After(state.cooldownUntil)
}

func (a *QuoteAggregator) recordServiceFailure(service string) {
	a.circuitMu.Lock()
	defer a.circuitMu.Unlock()
	state := a.serviceState[service]
	now := a.now()
	if state == nil {
		state = &serviceState{firstFailAt: now}
		a.serviceState[service] = state
	}
	if now.Sub(state.firstFailAt) > a.failWindow {
		state.failCount = 0
		state.firstFailAt = now
	}
	state.failCount++
	if state.failCount >= a.failThreshold {
		state.cooldownUntil = now.Add(a.cooldown)
		a.logger.Warn().Str("service", service).Time("until", state.cooldownUntil).Msg("quote service in cooldown")
	}
}

func (a *QuoteAggregator) recordServiceSuccess(service string) {
	a.circuitMu.Lock()
	defer a.circuitMu.Unlock()
	delete(a.serviceState, service)
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
