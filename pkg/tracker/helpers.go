package tracker

import (
	"strings"

	"github.com/Rhymond/go-money"
)

const unknownBroker = "unknown"

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func normalizeBroker(broker string) string {
	broker = strings.ToLower(strings.TrimSpace(broker))
	if broker == "" {
		return unknownBroker
	}
	return broker
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// IsKnownCurrency reports whether code is an ISO 4217 currency.
func IsKnownCurrency(code string) bool {
	code = normalizeCurrency(code)
	return code != "" && money.GetCurrency(code) != nil
}

// FormatMoney renders an amount with the currency's grapheme and precision.
// Unknown currencies fall back to a plain two-decimal rendering.
func FormatMoney(a Amount, currency string) string {
	cur := money.GetCurrency(normalizeCurrency(currency))
	if cur == nil {
		return a.StringFixed(2) + " " + normalizeCurrency(currency)
	}
	factor := decimalOf(1).Shift(int32(cur.Fraction))
	return money.New(a.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
