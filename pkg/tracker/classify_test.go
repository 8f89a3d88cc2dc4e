package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name                         string
		sector, industry, quoteType string
		want                         AssetType
	}{
		{"etf quote type", "", "", "ETF", AssetETF},
		{"etf wins over bond", "", "Bond ETF", "", AssetETF},
		{"bond industry", "Financial", "Government Bond", "", AssetBond},
		{"fixed income", "Fixed Income", "", "", AssetBond},
		{"commodity", "", "Commodity", "", AssetCommodity},
		{"crypto", "", "", "CRYPTOCURRENCY", AssetCrypto},
		{"cash", "Cash", "", "", AssetCash},
		{"equity quote type", "Technology", "Consumer Electronics", "EQUITY", AssetEquity},
		{"stock token", "Common Stock", "", "", AssetEquity},
		{"empty defaults to equity", "", "", "", AssetEquity},
		{"unknown", "Real Estate", "REIT", "", AssetOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.sector, tc.industry, tc.quoteType))
		})
	}
}

func TestEffectiveType(t *testing.T) {
	etf := &AssetMetadata{QuoteType: "ETF"}

	assert.Equal(t, AssetBond, effectiveType(Position{Type: AssetBond, ManualType: true}, etf))
	assert.Equal(t, AssetETF, effectiveType(Position{Type: AssetBond}, etf))
	assert.Equal(t, AssetBond, effectiveType(Position{Type: AssetBond}, nil))
	assert.Equal(t, AssetEquity, effectiveType(Position{}, nil))

	pair := &AssetMetadata{MarketSymbol: "XAUUSD", QuoteType: "CURRENCY"}
	assert.Equal(t, AssetCommodity, effectiveType(Position{Type: AssetCommodity}, pair))
	assert.Equal(t, AssetEquity, effectiveType(Position{Type: AssetEquity}, pair))
	assert.Equal(t, AssetETF, effectiveType(Position{Type: AssetCommodity}, &AssetMetadata{QuoteType: "ETF", Industry: "Commodity ETF"}))
}
