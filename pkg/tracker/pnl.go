package tracker

import "github.com/shopspring/decimal"

// RealizedPL replays the transactions on its own average-cost book and sums
// (sale price - average cost) over the quantity actually held at each sell.
func RealizedPL(txs []Transaction) float64 {
	type lot struct {
		qty decimal.Decimal
		avg decimal.Decimal
	}
	book := map[PositionKey]lot{}
	realized := decimal.Zero

	for _, tx := range sortByDate(txs) {
		key := PositionKey{Broker: normalizeBroker(tx.Broker), Symbol: normalizeSymbol(tx.Symbol)}
		if key.Symbol == "" {
			continue
		}
		cur := book[key]
		qtyTx := decimalOf(tx.Quantity)
		price := decimalOf(tx.Price)

		switch {
		case qtyTx.IsPositive():
			qtyNew := cur.qty.Add(qtyTx)
			avg := decimal.Zero
			if !qtyNew.IsZero() {
				avg = cur.avg.Mul(cur.qty).Add(price.Mul(qtyTx)).Div(qtyNew)
			}
			book[key] = lot{qty: qtyNew, avg: avg}
		case qtyTx.IsNegative():
			sell := qtyTx.Abs()
			used := decimal.Min(sell, decimal.Max(cur.qty, decimal.Zero))
			realized = realized.Add(price.Sub(cur.avg).Mul(used))
			qtyNew := decimal.Max(cur.qty.Sub(sell), decimal.Zero)
			avg := decimal.Zero
			if qtyNew.IsPositive() {
				avg = cur.avg
			}
			book[key] = lot{qty: qtyNew, avg: avg}
		}
	}
	return realized.InexactFloat64()
}

// CashInvested sums the cost of every buy. Symbols typed as bonds in types
// are priced as a percentage of face value. Sells and zero prices are ignored.
func CashInvested(txs []Transaction, types map[string]AssetType) float64 {
	total := decimal.Zero
	for _, tx := range txs {
		qty := decimalOf(tx.Quantity)
		price := decimalOf(tx.Price)
		if !qty.IsPositive() || !price.IsPositive() {
			continue
		}
		if types[normalizeSymbol(tx.Symbol)] == AssetBond {
			price = price.Div(hundred)
		}
		total = total.Add(price.Mul(qty))
	}
	return total.InexactFloat64()
}
