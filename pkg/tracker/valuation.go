package tracker

import (
	"sort"

	"github.com/shopspring/decimal"

	"investtracker/pkg/marketdata"
)

var hundred = decimal.NewFromInt(100)

// valuation is the priced view of one position.
type valuation struct {
	marketValue   *decimal.Decimal
	profitLossAbs *decimal.Decimal
	profitLossPct decimal.Decimal
	// activeCost is the cost basis counted in total_active_invested.
	activeCost decimal.Decimal
}

// valuePosition prices qty units bought at avg. Bonds are quoted as a
// percentage of face value. A bond without a cost basis uses the current
// price as its basis, which reports zero unrealized gain for it.
func valuePosition(price *float64, qty, avg float64, t AssetType) valuation {
	var v valuation
	if price == nil {
		return v
	}
	p := decimalOf(*price)
	q := decimalOf(qty)
	eff := decimalOf(avg)

	if t == AssetBond {
		if !eff.IsPositive() {
			eff = p
		}
		mv := p.Div(hundred).Mul(q)
		pl := decimal.Zero
		if !eff.IsZero() {
			pl = p.Sub(eff).Div(hundred).Mul(q)
			v.profitLossPct = p.Sub(eff).Div(eff).Mul(hundred)
		}
		basis := eff
		if basis.IsZero() {
			basis = p
		}
		v.marketValue, v.profitLossAbs = &mv, &pl
		v.activeCost = basis.Div(hundred).Mul(q)
		return v
	}

	mv := p.Mul(q)
	pl := decimal.Zero
	if !eff.IsZero() {
		pl = p.Sub(eff).Mul(q)
		v.profitLossPct = p.Sub(eff).Div(eff).Mul(hundred)
	}
	v.marketValue, v.profitLossAbs = &mv, &pl
	v.activeCost = eff.Mul(q)
	return v
}

// ValuationInput is everything the valuation step joins.
type ValuationInput struct {
	Positions    []Position
	Resolutions  map[PositionKey]Resolution
	Quotes       map[string]marketdata.Quote
	Metadata     map[string]AssetMetadata
	Transactions []Transaction
}

// Value joins positions with quotes and metadata and aggregates the totals.
func Value(in ValuationInput) ([]Asset, Totals) {
	symbolBrokers := map[string]map[string]struct{}{}
	for _, pos := range in.Positions {
		key := pos.Key()
		if symbolBrokers[key.Symbol] == nil {
			symbolBrokers[key.Symbol] = map[string]struct{}{}
		}
		symbolBrokers[key.Symbol][key.Broker] = struct{}{}
	}

	assets := make([]Asset, 0, len(in.Positions))
	types := map[string]AssetType{}
	for _, pos := range in.Positions {
		key := pos.Key()
		if key.Symbol == "" {
			continue
		}
		res, ok := in.Resolutions[key]
		if !ok {
			res = Resolution{Broker: key.Broker, Symbol: key.Symbol, MarketSymbol: key.Symbol, Source: SourcePassthrough}
		}
		var meta *AssetMetadata
		if m, ok := in.Metadata[key.Symbol]; ok {
			meta = &m
		}
		asset := buildAsset(pos, res, in.Quotes[res.MarketSymbol], meta)
		asset.Transactions = assetTransactions(in.Transactions, key, len(symbolBrokers[key.Symbol]) == 1)
		types[key.Symbol] = asset.Type
		assets = append(assets, asset)
	}

	totals := computeTotals(assets, RealizedPL(in.Transactions), CashInvested(in.Transactions, types))
	return assets, totals
}

func buildAsset(pos Position, res Resolution, quote marketdata.Quote, meta *AssetMetadata) Asset {
	key := pos.Key()
	pos.Symbol, pos.Broker = key.Symbol, key.Broker
	pos.Type = effectiveType(pos, meta)
	pos.Unmapped = res.Unmapped()

	asset := Asset{
		Position:          pos,
		MarketSymbol:      res.MarketSymbol,
		DisplayName:       pos.Name,
		CurrentPrice:      quote.Price,
		QuoteCurrency:     quote.Currency,
		LastPriceUpdate:   quote.Timestamp,
		Metadata:          meta,
		RepairSuggestions: res.Suggestions,
	}
	if meta != nil && meta.DisplayName() != "" {
		asset.DisplayName = meta.DisplayName()
	}
	if asset.DisplayName == "" {
		asset.DisplayName = key.Symbol
	}
	applyValuation(&asset)
	return asset
}

func applyValuation(asset *Asset) {
	v := valuePosition(asset.CurrentPrice, asset.Quantity, asset.AvgBuyPrice, asset.Type)
	asset.MarketValue, asset.ProfitLossAbs = nil, nil
	if v.marketValue != nil {
		asset.MarketValue = amountPtr(*v.marketValue)
		asset.ProfitLossAbs = amountPtr(*v.profitLossAbs)
	}
	asset.ProfitLossPct = amountOf(v.profitLossPct)
}

// assetTransactions returns the transactions of one position. When the broker
// has none recorded and the symbol is held at a single broker, all
// transactions of the symbol belong to it.
func assetTransactions(txs []Transaction, key PositionKey, soleHolder bool) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if normalizeSymbol(tx.Symbol) == key.Symbol && normalizeBroker(tx.Broker) == key.Broker {
			out = append(out, tx)
		}
	}
	if len(out) > 0 || !soleHolder {
		return out
	}
	for _, tx := range txs {
		if normalizeSymbol(tx.Symbol) == key.Symbol {
			out = append(out, tx)
		}
	}
	return out
}

func computeTotals(assets []Asset, realized, invested float64) Totals {
	value := decimal.Zero
	active := decimal.Zero
	for _, a := range assets {
		v := valuePosition(a.CurrentPrice, a.Quantity, a.AvgBuyPrice, a.Type)
		if v.marketValue != nil {
			value = value.Add(*v.marketValue)
		}
		active = active.Add(v.activeCost)
	}
	realizedDec := decimalOf(realized)
	investedDec := decimalOf(invested)
	unrealized := value.Sub(active)
	total := unrealized.Add(realizedDec)
	pct := decimal.Zero
	if !investedDec.IsZero() {
		pct = total.Div(investedDec).Mul(hundred)
	}
	return Totals{
		TotalValue:                amountOf(value),
		TotalActiveInvested:       amountOf(active),
		TotalInvested:             amountOf(investedDec),
		TotalProfitLossRealized:   amountOf(realizedDec),
		TotalProfitLossUnrealized: amountOf(unrealized),
		TotalProfitLoss:           amountOf(total),
		TotalProfitLossPct:        amountOf(pct),
	}
}

// unmappedSymbols returns the sorted unique symbols flagged unmapped.
func unmappedSymbols(assets []Asset) []string {
	var out []string
	for _, a := range assets {
		if a.Unmapped {
			out = append(out, a.Symbol)
		}
	}
	out = dedupeStrings(out)
	sort.Strings(out)
	return out
}
