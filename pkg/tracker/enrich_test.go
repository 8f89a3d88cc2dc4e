package tracker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/pkg/marketdata"
)

func TestEnrichLearnsMissingMetadata(t *testing.T) {
	search := &fakeSearch{
		results: map[string][]marketdata.SearchResult{
			"VWCE.DE": {
				{Symbol: "VWCE.F", ShortName: "wrong listing"},
				{Symbol: "VWCE.DE", ShortName: "Vanguard FTSE All-World", Exchange: "GER"},
			},
		},
		quoteTypes: map[string]*marketdata.QuoteTypeInfo{
			"VWCE.DE": {Symbol: "VWCE.DE", QuoteType: "ETF", LongName: "Vanguard FTSE All-World UCITS ETF"},
		},
	}
	e := NewEnricher(search, zerolog.Nop())
	positions := []Position{
		{Symbol: "VWCE", Broker: "degiro"},
		{Symbol: "VWCE", Broker: "revolut"},
		{Symbol: "KNOWN", Broker: "degiro"},
		{Symbol: "LOST", Broker: "degiro"},
	}
	resolutions := map[PositionKey]Resolution{
		{Broker: "degiro", Symbol: "VWCE"}:  {MarketSymbol: "VWCE.DE", Source: SourceDefault},
		{Broker: "revolut", Symbol: "VWCE"}: {MarketSymbol: "VWCE.DE", Source: SourceDefault},
		{Broker: "degiro", Symbol: "KNOWN"}: {MarketSymbol: "KNOWN", Source: SourceOverride},
		{Broker: "degiro", Symbol: "LOST"}:  {MarketSymbol: "LOST", Source: SourceUnresolved},
	}
	known := map[string]AssetMetadata{"KNOWN": {Symbol: "KNOWN", MarketSymbol: "KNOWN"}}

	learned := e.Enrich(context.Background(), positions, resolutions, known)
	require.Len(t, learned, 1)
	meta := learned[0]
	assert.Equal(t, "VWCE", meta.Symbol)
	assert.Equal(t, "VWCE.DE", meta.MarketSymbol)
	assert.Equal(t, "Vanguard FTSE All-World", meta.ShortName)
	assert.Equal(t, "Vanguard FTSE All-World UCITS ETF", meta.LongName)
	assert.Equal(t, "ETF", meta.QuoteType)
	assert.Equal(t, AssetETF, Classify(meta.Sector, meta.Industry, meta.QuoteType))
	assert.Equal(t, []string{"VWCE.DE"}, search.queries)
}

func TestNilEnricherIsNoop(t *testing.T) {
	var e *Enricher
	assert.Nil(t, e.Enrich(context.Background(), []Position{{Symbol: "A"}}, nil, nil))
	assert.Nil(t, NewEnricher(nil, zerolog.Nop()).Enrich(context.Background(), nil, nil, nil))
}
