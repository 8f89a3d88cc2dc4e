package tracker

import (
	"strconv"
	"strings"
)

// DedupKey identifies a transaction for duplicate detection. The id is not part of it.
func DedupKey(tx Transaction) string {
	return strings.Join([]string{
		normalizeSymbol(tx.Symbol),
		normalizeBroker(tx.Broker),
		strings.TrimSpace(tx.Date),
		strconv.FormatFloat(tx.Quantity, 'f', -1, 64),
		strconv.FormatFloat(tx.Price, 'f', -1, 64),
		strings.ToUpper(strings.TrimSpace(tx.Type)),
	}, "|")
}

// Deduplicate keeps the first transaction seen for every key, preserving order.
func Deduplicate(txs []Transaction) []Transaction {
	seen := make(map[string]struct{}, len(txs))
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		key := DedupKey(tx)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tx)
	}
	return out
}
