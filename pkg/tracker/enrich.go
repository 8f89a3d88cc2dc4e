package tracker

import (
	"context"

	"github.com/rs/zerolog"

	"investtracker/pkg/marketdata"
)

// MetadataClient describes listings for classification and display.
type MetadataClient interface {
	SymbolSearcher
	QuoteType(ctx context.Context, symbol string) (*marketdata.QuoteTypeInfo, error)
}

// Enricher learns asset metadata for resolved symbols.
type Enricher struct {
	client MetadataClient
	logger zerolog.Logger
}

// NewEnricher creates an Enricher. A nil client makes it a no-op.
func NewEnricher(client MetadataClient, logger zerolog.Logger) *Enricher {
	return &Enricher{client: client, logger: logger}
}

// Enrich returns metadata for every resolved position whose metadata is
// missing or was learned for another market symbol. Unmapped positions and
// commodity pairs are skipped. Symbols are looked up one after another.
func (e *Enricher) Enrich(ctx context.Context, positions []Position, resolutions map[PositionKey]Resolution, known map[string]AssetMetadata) []AssetMetadata {
	if e == nil || e.client == nil {
		return nil
	}
	var out []AssetMetadata
	done := map[string]struct{}{}
	for _, pos := range positions {
		key := pos.Key()
		res, ok := resolutions[key]
		if !ok || res.Unmapped() || res.MarketSymbol == "" || res.Source == SourceCommodity {
			continue
		}
		if _, seen := done[key.Symbol]; seen {
			continue
		}
		done[key.Symbol] = struct{}{}
		if m, ok := known[key.Symbol]; ok && m.MarketSymbol == res.MarketSymbol {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if meta, ok := e.describe(ctx, key.Symbol, res.MarketSymbol); ok {
			out = append(out, meta)
		}
	}
	return out
}

func (e *Enricher) describe(ctx context.Context, symbol, marketSymbol string) (AssetMetadata, bool) {
	meta := AssetMetadata{Symbol: symbol, MarketSymbol: marketSymbol}
	found := false

	results, err := e.client.Search(ctx, marketSymbol)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", marketSymbol).Msg("metadata search failed")
	}
	if hit, ok := pickListing(results, marketSymbol); ok {
		meta.Sector = hit.Sector
		meta.Industry = hit.Industry
		meta.QuoteType = hit.QuoteType
		meta.Exchange = hit.Exchange
		meta.ShortName = hit.ShortName
		meta.LongName = hit.LongName
		meta.LogoURL = hit.LogoURL
		found = true
	}

	info, err := e.client.QuoteType(ctx, marketSymbol)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", marketSymbol).Msg("quote type lookup failed")
	}
	if info != nil {
		if info.QuoteType != "" {
			meta.QuoteType = info.QuoteType
		}
		if meta.Exchange == "" {
			meta.Exchange = info.Exchange
		}
		if meta.ShortName == "" {
			meta.ShortName = info.ShortName
		}
		if meta.LongName == "" {
			meta.LongName = info.LongName
		}
		found = true
	}
	return meta, found
}

// pickListing prefers the listing whose symbol equals marketSymbol.
func pickListing(results []marketdata.SearchResult, marketSymbol string) (marketdata.SearchResult, bool) {
	for _, r := range results {
		if normalizeSymbol(r.Symbol) == marketSymbol {
			return r, true
		}
	}
	if len(results) > 0 {
		return results[0], true
	}
	return marketdata.SearchResult{}, false
}
