package tracker

import (
	"strings"
	"time"

	"investtracker/pkg/marketdata"
)

// AssetType is the closed instrument taxonomy.
type AssetType string

const (
	AssetEquity    AssetType = "equity"
	AssetETF       AssetType = "etf"
	AssetBond      AssetType = "bond"
	AssetCommodity AssetType = "commodity"
	AssetCrypto    AssetType = "crypto"
	AssetCash      AssetType = "cash"
	AssetOther     AssetType = "other"
)

// AssetTypes lists every valid AssetType.
var AssetTypes = []AssetType{AssetEquity, AssetETF, AssetBond, AssetCommodity, AssetCrypto, AssetCash, AssetOther}

// ParseAssetType normalizes s and reports whether it names a known type.
func ParseAssetType(s string) (AssetType, bool) {
	t := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AssetTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Provider selects the market data source of a portfolio.
type Provider string

const (
	ProviderStooq        Provider = "stooq"
	ProviderAlphaVantage Provider = "alpha_vantage"
	ProviderYahoo        Provider = "yahoo_public"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStooq, ProviderAlphaVantage, ProviderYahoo:
		return p, true
	}
	return "", false
}

// Position is a holding identified by (broker, symbol).
type Position struct {
	Symbol      string    `json:"symbol" msgpack:"symbol"`
	Name        string    `json:"name" msgpack:"name"`
	Type        AssetType `json:"type" msgpack:"type"`
	ManualType  bool      `json:"manual_type" msgpack:"manual_type"`
	Quantity    float64   `json:"quantity" msgpack:"quantity"`
	AvgBuyPrice float64   `json:"avg_buy_price" msgpack:"avg_buy_price"`
	Currency    string    `json:"currency" msgpack:"currency"`
	Broker      string    `json:"broker" msgpack:"broker"`
	Unmapped    bool      `json:"unmapped" msgpack:"unmapped"`
}

// Key returns the normalized identity of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Broker: normalizeBroker(p.Broker), Symbol: normalizeSymbol(p.Symbol)}
}

// PositionKey is the (broker, symbol) identity of a position.
type PositionKey struct {
	Broker string
	Symbol string
}

// Transaction is an immutable trade record. Positive quantity buys, negative sells.
type Transaction struct {
	ID       string  `json:"id,omitempty" msgpack:"id"`
	Symbol   string  `json:"symbol" msgpack:"symbol"`
	Name     string  `json:"name" msgpack:"name"`
	Quantity float64 `json:"quantity" msgpack:"quantity"`
	Price    float64 `json:"price" msgpack:"price"`
	Currency string  `json:"currency" msgpack:"currency"`
	Broker   string  `json:"broker" msgpack:"broker"`
	Date     string  `json:"date" msgpack:"date"`
	Type     string  `json:"type,omitempty" msgpack:"type"`
}

// MappingTable maps broker -> broker symbol -> market symbol.
type MappingTable map[string]map[string]string

// Lookup returns the market symbol recorded for broker and symbol.
func (m MappingTable) Lookup(broker, symbol string) (string, bool) {
	inner, ok := m[normalizeBroker(broker)]
	if !ok {
		return "", false
	}
	v, ok := inner[normalizeSymbol(symbol)]
	return v, ok && v != ""
}

// Set records a market symbol for broker and symbol.
func (m MappingTable) Set(broker, symbol, marketSymbol string) {
	broker = normalizeBroker(broker)
	if m[broker] == nil {
		m[broker] = map[string]string{}
	}
	m[broker][normalizeSymbol(symbol)] = normalizeSymbol(marketSymbol)
}

// Clone returns a deep copy.
func (m MappingTable) Clone() MappingTable {
	out := make(MappingTable, len(m))
	for broker, inner := range m {
		cp := make(map[string]string, len(inner))
		for k, v := range inner {
			cp[k] = v
		}
		out[broker] = cp
	}
	return out
}

// AssetMetadata is descriptive data learned from the search provider.
type AssetMetadata struct {
	Symbol       string `json:"symbol" msgpack:"symbol"`
	MarketSymbol string `json:"market_symbol" msgpack:"market_symbol"`
	Sector       string `json:"sector,omitempty" msgpack:"sector"`
	Industry     string `json:"industry,omitempty" msgpack:"industry"`
	QuoteType    string `json:"quote_type,omitempty" msgpack:"quote_type"`
	Exchange     string `json:"exchange,omitempty" msgpack:"exchange"`
	ShortName    string `json:"short_name,omitempty" msgpack:"short_name"`
	LongName     string `json:"long_name,omitempty" msgpack:"long_name"`
	LogoURL      string `json:"logo_url,omitempty" msgpack:"logo_url"`
}

// DisplayName prefers the short listing name.
func (m AssetMetadata) DisplayName() string {
	if m.ShortName != "" {
		return m.ShortName
	}
	return m.LongName
}

// State is the persisted input of one refresh cycle.
type State struct {
	PortfolioID   string                   `json:"portfolio_id"`
	Positions     []Position               `json:"positions"`
	Transactions  []Transaction            `json:"transactions"`
	SymbolMapping MappingTable             `json:"symbol_mapping"`
	Metadata      map[string]AssetMetadata `json:"asset_metadata"`
	Unmapped      []string                 `json:"unmapped_symbols"`
}

// Asset is a position joined with its quote and classification.
type Asset struct {
	Position
	MarketSymbol      string                    `json:"market_symbol" msgpack:"market_symbol"`
	DisplayName       string                    `json:"display_name" msgpack:"display_name"`
	CurrentPrice      *float64                  `json:"current_price" msgpack:"current_price"`
	QuoteCurrency     string                    `json:"quote_currency,omitempty" msgpack:"quote_currency"`
	MarketValue       *Amount                   `json:"market_value" msgpack:"market_value"`
	ProfitLossAbs     *Amount                   `json:"profit_loss_abs" msgpack:"profit_loss_abs"`
	ProfitLossPct     Amount                    `json:"profit_loss_pct" msgpack:"profit_loss_pct"`
	LastPriceUpdate   time.Time                 `json:"last_price_update" msgpack:"last_price_update"`
	Metadata          *AssetMetadata            `json:"metadata,omitempty" msgpack:"metadata"`
	Transactions      []Transaction             `json:"transactions" msgpack:"transactions"`
	RepairSuggestions []marketdata.SearchResult `json:"repair_suggestions" msgpack:"repair_suggestions"`
}

// Totals aggregates all assets of a portfolio.
type Totals struct {
	TotalValue                Amount `json:"total_value" msgpack:"total_value"`
	TotalActiveInvested       Amount `json:"total_active_invested" msgpack:"total_active_invested"`
	TotalInvested             Amount `json:"total_invested" msgpack:"total_invested"`
	TotalProfitLossRealized   Amount `json:"total_profit_loss_realized" msgpack:"total_profit_loss_realized"`
	TotalProfitLossUnrealized Amount `json:"total_profit_loss_unrealized" msgpack:"total_profit_loss_unrealized"`
	TotalProfitLoss           Amount `json:"total_profit_loss" msgpack:"total_profit_loss"`
	TotalProfitLossPct        Amount `json:"total_profit_loss_pct" msgpack:"total_profit_loss_pct"`
}

// Snapshot is the output of a successful refresh cycle.
type Snapshot struct {
	PortfolioID     string    `json:"portfolio_id" msgpack:"portfolio_id"`
	CycleID         string    `json:"cycle_id" msgpack:"cycle_id"`
	BaseCurrency    string    `json:"base_currency" msgpack:"base_currency"`
	Provider        Provider  `json:"provider" msgpack:"provider"`
	Assets          []Asset   `json:"assets" msgpack:"assets"`
	Totals          Totals    `json:"totals" msgpack:"totals"`
	UnmappedSymbols []string  `json:"unmapped_symbols" msgpack:"unmapped_symbols"`
	ComputedAt      time.Time `json:"computed_at" msgpack:"computed_at"`
	Stale           bool      `json:"stale" msgpack:"stale"`
	LastError       string    `json:"last_error,omitempty" msgpack:"last_error"`
}

// Warning is a user-fixable issue raised for a symbol.
type Warning struct {
	PortfolioID string                    `json:"portfolio_id"`
	Symbol      string                    `json:"symbol"`
	Name        string                    `json:"name"`
	Suggestions []marketdata.SearchResult `json:"suggestions"`
	CreatedAt   time.Time                 `json:"created_at"`
}
