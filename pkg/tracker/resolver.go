package tracker

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"investtracker/pkg/marketdata"
)

const (
	// DefaultMatchThreshold is the minimum similarity for an automatic match.
	DefaultMatchThreshold = 0.9
	maxRepairSuggestions  = 5
	defaultMappingBroker  = "default"
)

// DefaultMapping holds canonical market symbols for known special tickers.
func DefaultMapping() MappingTable {
	return MappingTable{
		defaultMappingBroker: {
			"XAU":  "XAUUSD=X",
			"VWCE": "VWCE.DE",
		},
	}
}

// SymbolSearcher looks up candidate listings for a symbol.
type SymbolSearcher interface {
	Search(ctx context.Context, query string) ([]marketdata.SearchResult, error)
}

// Scorer rates how similar a candidate is to the requested symbol, in [0, 1].
type Scorer func(requested, candidate string) float64

// SimilarityRatio is the case-insensitive matching-blocks ratio of two strings.
func SimilarityRatio(requested, candidate string) float64 {
	a := strings.Split(strings.ToUpper(requested), "")
	b := strings.Split(strings.ToUpper(candidate), "")
	return difflib.NewMatcher(a, b).Ratio()
}

// ResolutionSource tells which rule produced a market symbol.
type ResolutionSource string

const (
	SourceOverride    ResolutionSource = "override"
	SourceDefault     ResolutionSource = "default"
	SourcePassthrough ResolutionSource = "passthrough"
	SourceCommodity   ResolutionSource = "commodity"
	SourceSearch      ResolutionSource = "search"
	SourceUnresolved  ResolutionSource = "unresolved"
)

// Resolution is the outcome of resolving one broker symbol.
type Resolution struct {
	Broker       string
	Symbol       string
	MarketSymbol string
	Confidence   float64
	Source       ResolutionSource
	Suggestions  []marketdata.SearchResult
}

// Unmapped reports whether the symbol could not be resolved with confidence.
func (r Resolution) Unmapped() bool {
	return r.Source == SourceUnresolved
}

// MappingUpdate is a mapping learned during resolution, to be persisted by the caller.
type MappingUpdate struct {
	Broker       string `json:"broker"`
	Symbol       string `json:"symbol"`
	MarketSymbol string `json:"market_symbol"`
}

// ResolveRequest describes the position being resolved.
type ResolveRequest struct {
	Broker   string
	Symbol   string
	Type     AssetType
	Currency string
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Searcher  SymbolSearcher
	Scorer    Scorer
	Defaults  MappingTable
	Threshold float64
	Logger    zerolog.Logger
}

// Resolver maps broker symbols to market data provider symbols.
type Resolver struct {
	searcher  SymbolSearcher
	score     Scorer
	defaults  MappingTable
	threshold float64
	logger    zerolog.Logger
}

// NewResolver creates a Resolver. Missing options fall back to the
// difflib scorer, DefaultMapping and DefaultMatchThreshold.
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		searcher:  opts.Searcher,
		score:     opts.Scorer,
		defaults:  opts.Defaults,
		threshold: opts.Threshold,
		logger:    opts.Logger,
	}
	if r.score == nil {
		r.score = SimilarityRatio
	}
	if r.defaults == nil {
		r.defaults = DefaultMapping()
	}
	if r.threshold <= 0 {
		r.threshold = DefaultMatchThreshold
	}
	return r
}

// MapStatic resolves through the broker override table, then the default
// table, and otherwise passes the symbol through.
func (r *Resolver) MapStatic(mapping MappingTable, broker, symbol string) Resolution {
	res := Resolution{Broker: normalizeBroker(broker), Symbol: normalizeSymbol(symbol), Confidence: 1}
	if v, ok := mapping.Lookup(broker, symbol); ok {
		res.MarketSymbol, res.Source = v, SourceOverride
		return res
	}
	if v, ok := r.defaults.Lookup(defaultMappingBroker, symbol); ok {
		res.MarketSymbol, res.Source = v, SourceDefault
		return res
	}
	res.MarketSymbol, res.Source = res.Symbol, SourcePassthrough
	return res
}

// Resolve maps one position symbol for the given provider. A search match is
// returned as a MappingUpdate instead of being written anywhere.
func (r *Resolver) Resolve(ctx context.Context, mapping MappingTable, req ResolveRequest, provider Provider) (Resolution, *MappingUpdate) {
	switch provider {
	case ProviderYahoo:
		return r.resolveSearch(ctx, mapping, req, nil)
	case ProviderAlphaVantage:
		res := Resolution{Broker: normalizeBroker(req.Broker), Symbol: normalizeSymbol(req.Symbol), Confidence: 1}
		if v, ok := mapping.Lookup(req.Broker, req.Symbol); ok {
			res.MarketSymbol, res.Source = v, SourceOverride
		} else {
			res.MarketSymbol, res.Source = res.Symbol, SourcePassthrough
		}
		return res, nil
	default:
		return r.MapStatic(mapping, req.Broker, req.Symbol), nil
	}
}

// ResolveAll resolves every position, issuing at most one search per symbol.
func (r *Resolver) ResolveAll(ctx context.Context, mapping MappingTable, positions []Position, baseCurrency string, provider Provider) (map[PositionKey]Resolution, []MappingUpdate) {
	out := make(map[PositionKey]Resolution, len(positions))
	var updates []MappingUpdate
	searches := map[string][]marketdata.SearchResult{}
	for _, pos := range positions {
		key := pos.Key()
		if key.Symbol == "" {
			continue
		}
		if _, done := out[key]; done {
			continue
		}
		if ctx.Err() != nil {
			return out, updates
		}
		currency := pos.Currency
		if currency == "" {
			currency = baseCurrency
		}
		req := ResolveRequest{Broker: key.Broker, Symbol: key.Symbol, Type: pos.Type, Currency: currency}
		var res Resolution
		var upd *MappingUpdate
		if provider == ProviderYahoo {
			res, upd = r.resolveSearch(ctx, mapping, req, searches)
		} else {
			res, upd = r.Resolve(ctx, mapping, req, provider)
		}
		out[key] = res
		if upd != nil {
			updates = append(updates, *upd)
		}
	}
	return out, updates
}

func (r *Resolver) resolveSearch(ctx context.Context, mapping MappingTable, req ResolveRequest, memo map[string][]marketdata.SearchResult) (Resolution, *MappingUpdate) {
	res := Resolution{Broker: normalizeBroker(req.Broker), Symbol: normalizeSymbol(req.Symbol), Confidence: 1}
	if v, ok := mapping.Lookup(req.Broker, req.Symbol); ok {
		res.MarketSymbol, res.Source = v, SourceOverride
		return res, nil
	}
	if req.Type == AssetCommodity {
		res.MarketSymbol, res.Source = res.Symbol+normalizeCurrency(req.Currency), SourceCommodity
		return res, nil
	}
	results, cached := memo[res.Symbol]
	if !cached {
		results = r.search(ctx, res.Symbol)
		if memo != nil {
			memo[res.Symbol] = results
		}
	}
	if len(results) > maxRepairSuggestions {
		res.Suggestions = results[:maxRepairSuggestions]
	} else {
		res.Suggestions = results
	}

	var best string
	var bestScore float64
	high := 0
	for _, cand := range results {
		score := r.score(res.Symbol, cand.Symbol)
		if score >= r.threshold {
			high++
			best, bestScore = normalizeSymbol(cand.Symbol), score
		}
	}
	if high == 1 {
		res.MarketSymbol, res.Confidence, res.Source = best, bestScore, SourceSearch
		return res, &MappingUpdate{Broker: res.Broker, Symbol: res.Symbol, MarketSymbol: best}
	}

	r.logger.Debug().Str("symbol", res.Symbol).Int("candidates", len(results)).Int("matches", high).Msg("symbol left unresolved")
	res.MarketSymbol, res.Confidence, res.Source = res.Symbol, 0, SourceUnresolved
	return res, nil
}

func (r *Resolver) search(ctx context.Context, symbol string) []marketdata.SearchResult {
	if r.searcher == nil {
		return nil
	}
	results, err := r.searcher.Search(ctx, symbol)
	if err != nil {
		r.logger.Debug().Err(err).Str("symbol", symbol).Msg("symbol search failed")
		return nil
	}
	return results
}
