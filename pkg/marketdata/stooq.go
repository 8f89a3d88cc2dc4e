package marketdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultStooqURL is the Stooq quote host.
const DefaultStooqURL = "https://stooq.com"

// stooqSuffixes are probed in order for symbols without an exchange suffix.
// The bare symbol is tried last.
var stooqSuffixes = []string{".US", ".DE", ".UK", ".L", ".F", ".PL", ""}

// Stooq fetches last close prices from the Stooq CSV endpoint.
type Stooq struct {
	base
}

// NewStooq creates a Stooq client.
func NewStooq(opts ...Option) *Stooq {
	return &Stooq{base: newBase(DefaultStooqURL, opts)}
}

// Candidates lists the provider symbols tried for a requested symbol.
func (s *Stooq) Candidates(symbol string) []string {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil
	}
	if strings.Contains(sym, ".") {
		return []string{sym}
	}
	out := make([]string, 0, len(stooqSuffixes))
	for _, suffix := range stooqSuffixes {
		out = append(out, sym+suffix)
	}
	return out
}

// Quote probes the candidate symbols until one carries a closing price.
// SourceSymbol records the candidate that answered.
func (s *Stooq) Quote(ctx context.Context, symbol string) (Quote, error) {
	quote := Quote{Symbol: NormalizeSymbol(symbol), Timestamp: s.now().UTC()}
	var lastErr error
	for _, candidate := range s.Candidates(symbol) {
		if err := ctx.Err(); err != nil {
			return quote, err
		}
		price, err := s.close(ctx, candidate)
		if err != nil {
			s.logger.Debug().Err(err).Str("candidate", candidate).Msg("stooq probe failed")
			lastErr = err
			continue
		}
		quote.Price = floatPtr(price)
		quote.SourceSymbol = candidate
		return quote, nil
	}
	if lastErr == nil {
		lastErr = ErrNoData
	}
	return quote, lastErr
}

func (s *Stooq) close(ctx context.Context, candidate string) (float64, error) {
	params := url.Values{}
	params.Set("s", strings.ToLower(candidate))
	params.Set("f", "sd2t2ohlcv")
	params.Set("h", "")
	params.Set("e", "csv")
	body, err := s.get(ctx, fmt.Sprintf("%s/q/l/?%s", s.baseURL, params.Encode()), nil)
	if err != nil {
		return 0, err
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimSpace(body)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("decode stooq csv: %w", err)
	}
	if len(rows) < 2 {
		return 0, ErrNoData
	}
	for i, col := range rows[0] {
		if !strings.EqualFold(strings.TrimSpace(col), "Close") || i >= len(rows[1]) {
			continue
		}
		value := strings.TrimSpace(rows[1][i])
		if value == "" || value == "N/A" || value == "N/D" {
			return 0, ErrNoData
		}
		price, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, ErrNoData
		}
		return price, nil
	}
	return 0, ErrNoData
}
