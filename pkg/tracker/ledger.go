package tracker

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// sortByDate returns the transactions ordered by parsed date. Ties keep input order.
func sortByDate(txs []Transaction) []Transaction {
	type dated struct {
		tx Transaction
		at time.Time
	}
	items := make([]dated, len(txs))
	for i, tx := range txs {
		items[i] = dated{tx: tx, at: ParseDate(tx.Date)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.Before(items[j].at)
	})
	out := make([]Transaction, len(items))
	for i, it := range items {
		out[i] = it.tx
	}
	return out
}

// Replay applies the transaction log to the position snapshot using weighted
// average cost. Buys move the average; sells keep it while quantity remains
// and reset it to zero when the position closes. Quantity never drops below zero.
//
// A transaction whose broker holds no such position is attributed to the only
// broker that does, if exactly one does. The inputs are not modified.
func Replay(positions []Position, txs []Transaction) []Position {
	index := make(map[PositionKey]Position, len(positions))
	var order []PositionKey
	brokers := map[string]map[string]struct{}{}

	for _, pos := range positions {
		key := pos.Key()
		if key.Symbol == "" {
			continue
		}
		pos.Broker = key.Broker
		pos.Symbol = key.Symbol
		if _, exists := index[key]; !exists {
			order = append(order, key)
		}
		index[key] = pos
		if brokers[key.Symbol] == nil {
			brokers[key.Symbol] = map[string]struct{}{}
		}
		brokers[key.Symbol][key.Broker] = struct{}{}
	}

	for _, tx := range sortByDate(txs) {
		key := PositionKey{Broker: normalizeBroker(tx.Broker), Symbol: normalizeSymbol(tx.Symbol)}
		if key.Symbol == "" {
			continue
		}
		current, ok := index[key]
		if !ok {
			if only, single := soleBroker(brokers[key.Symbol]); single {
				key.Broker = only
				current = index[key]
			}
		}

		qtyOld := decimalOf(current.Quantity)
		avgOld := decimalOf(current.AvgBuyPrice)
		qtyTx := decimalOf(tx.Quantity)
		qtyNew := qtyOld.Add(qtyTx)

		avgNew := decimal.Zero
		if qtyTx.IsPositive() {
			if !qtyNew.IsZero() {
				cost := avgOld.Mul(qtyOld).Add(decimalOf(tx.Price).Mul(qtyTx))
				avgNew = cost.Div(qtyNew)
			}
		} else if qtyNew.IsPositive() {
			avgNew = avgOld
		}

		next := current
		next.Symbol = key.Symbol
		next.Broker = key.Broker
		if next.Name == "" {
			next.Name = tx.Name
		}
		if next.Name == "" {
			next.Name = key.Symbol
		}
		if next.Type == "" {
			next.Type = AssetEquity
		}
		if next.Currency == "" {
			next.Currency = normalizeCurrency(tx.Currency)
		}
		next.Quantity = decimal.Max(qtyNew, decimal.Zero).InexactFloat64()
		next.AvgBuyPrice = avgNew.InexactFloat64()

		if _, exists := index[key]; !exists {
			order = append(order, key)
		}
		index[key] = next
	}

	out := make([]Position, 0, len(order))
	for _, key := range order {
		out = append(out, index[key])
	}
	return out
}

func soleBroker(set map[string]struct{}) (string, bool) {
	if len(set) != 1 {
		return "", false
	}
	for b := range set {
		return b, true
	}
	return "", false
}
