package tracker

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// CSV header names of the supported transaction exports.
const (
	colRevolutDate     = "Date"
	colRevolutTicker   = "Ticker"
	colRevolutType     = "Type"
	colRevolutQuantity = "Quantity"
	colRevolutPrice    = "Price per share"
	colRevolutCurrency = "Currency"

	colDegiroDate     = "Datum"
	colDegiroTime     = "Tijd"
	colDegiroProduct  = "Product"
	colDegiroISIN     = "ISIN"
	colDegiroQuantity = "Aantal"
	colDegiroPrice    = "Koers"
	colDegiroLocal    = "Lokale waarde"
)

const defaultPositionBroker = "csv"

var currencySuffixes = []string{"EUR", "USD", "GBP", "PLN"}

// ParseNumber reads a broker-formatted number. Currency codes, spaces and
// thousands separators are dropped, a lone comma is a decimal comma, and
// anything unreadable is zero.
func ParseNumber(value string) float64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0
	}
	upper := strings.ToUpper(s)
	for _, code := range currencySuffixes {
		upper = strings.ReplaceAll(upper, code, "")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\'':
			return -1
		}
		return r
	}, upper)

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		// The right-most separator is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.ReplaceAll(s, ",", ".")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParsePositionsCSV reads a position snapshot. Rows without a symbol are skipped.
func ParsePositionsCSV(r io.Reader, defaultBroker string) []Position {
	header, rows := readCSV(r)
	if len(header) == 0 {
		return nil
	}
	idx := headerIndex(header, strings.ToLower)

	broker := strings.TrimSpace(defaultBroker)
	if broker == "" {
		broker = defaultPositionBroker
	}
	var out []Position
	for _, row := range rows {
		get := func(col string) string { return field(row, idx, col) }
		symbol := normalizeSymbol(get("symbol"))
		if symbol == "" {
			continue
		}
		pos := Position{
			Symbol:      symbol,
			Name:        get("name"),
			Type:        AssetEquity,
			ManualType:  strings.EqualFold(get("manual_type"), "true"),
			Quantity:    ParseNumber(get("quantity")),
			AvgBuyPrice: ParseNumber(get("avg_buy_price")),
			Currency:    normalizeCurrency(get("currency")),
			Broker:      get("broker"),
			Unmapped:    strings.EqualFold(get("unmapped"), "true"),
		}
		if pos.Name == "" {
			pos.Name = symbol
		}
		if raw := get("type"); raw != "" {
			if t, ok := ParseAssetType(raw); ok {
				pos.Type = t
			} else {
				pos.Type = AssetOther
			}
		}
		if pos.Broker == "" {
			pos.Broker = broker
		}
		out = append(out, pos)
	}
	return out
}

// ParseTransactionsCSV detects the export format from the header and reads
// its rows. Unknown headers yield nil.
func ParseTransactionsCSV(r io.Reader, broker, baseCurrency string) []Transaction {
	header, rows := readCSV(r)
	if len(header) == 0 {
		return nil
	}
	idx := headerIndex(header, nil)
	has := func(cols ...string) bool {
		for _, c := range cols {
			if _, ok := idx[c]; !ok {
				return false
			}
		}
		return true
	}
	switch {
	case has(colRevolutDate, colRevolutTicker, colRevolutType):
		return parseRevolutRows(rows, idx, broker)
	case has(colDegiroDate, colDegiroProduct, colDegiroQuantity):
		return parseDegiroRows(rows, idx, broker, baseCurrency)
	}
	return nil
}

func parseRevolutRows(rows [][]string, idx map[string]int, broker string) []Transaction {
	var out []Transaction
	for _, row := range rows {
		symbol := normalizeSymbol(field(row, idx, colRevolutTicker))
		if symbol == "" {
			continue
		}
		quantity := ParseNumber(field(row, idx, colRevolutQuantity))
		txType := strings.ToUpper(field(row, idx, colRevolutType))
		if quantity < 0 {
			quantity = -quantity
		}
		if strings.Contains(txType, "SELL") {
			quantity = -quantity
		}
		out = append(out, Transaction{
			Symbol:   symbol,
			Name:     symbol,
			Quantity: quantity,
			Price:    ParseNumber(field(row, idx, colRevolutPrice)),
			Currency: normalizeCurrency(field(row, idx, colRevolutCurrency)),
			Broker:   broker,
			Date:     field(row, idx, colRevolutDate),
			Type:     txType,
		})
	}
	return out
}

func parseDegiroRows(rows [][]string, idx map[string]int, broker, baseCurrency string) []Transaction {
	var out []Transaction
	for _, row := range rows {
		symbol := field(row, idx, colDegiroISIN)
		name := field(row, idx, colDegiroProduct)
		if symbol == "" && name == "" {
			continue
		}
		currency := ""
		if i, ok := idx[colDegiroLocal]; ok && i+1 < len(row) {
			// The currency sits in the unnamed column after the local value.
			currency = normalizeCurrency(row[i+1])
		}
		if currency == "" {
			currency = normalizeCurrency(baseCurrency)
		}
		if symbol == "" {
			symbol = name
		}
		if name == "" {
			name = symbol
		}
		date := strings.TrimSpace(field(row, idx, colDegiroDate) + " " + field(row, idx, colDegiroTime))
		out = append(out, Transaction{
			Symbol:   normalizeSymbol(symbol),
			Name:     name,
			Quantity: ParseNumber(field(row, idx, colDegiroQuantity)),
			Price:    ParseNumber(field(row, idx, colDegiroPrice)),
			Currency: currency,
			Broker:   broker,
			Date:     date,
		})
	}
	return out
}

// readCSV returns the header and data rows, unwrapping lines that an exporter
// quoted as a single field.
func readCSV(r io.Reader) ([]string, [][]string) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	var header []string
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// The reader resumes on the next line.
				continue
			}
			break
		}
		record = unwrapRow(record)
		if header == nil {
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			for i := range record {
				record[i] = strings.Trim(strings.TrimSpace(record[i]), `"`)
			}
			header = record
			continue
		}
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}
	return header, rows
}

func unwrapRow(values []string) []string {
	if len(values) != 1 {
		return values
	}
	trimmed := strings.TrimSpace(values[0])
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	if !strings.Contains(trimmed, ",") {
		return values
	}
	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func headerIndex(header []string, fold func(string) string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if fold != nil {
			name = fold(name)
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func field(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
