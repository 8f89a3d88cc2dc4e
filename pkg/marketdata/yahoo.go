package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// DefaultYahooURL is the public Yahoo Finance query host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// maxSearchResults caps the candidates returned by Search.
const maxSearchResults = 10

// chartWindow is how far back the intraday chart request looks.
const chartWindow = 3 * 24 * time.Hour

// SearchResult is one candidate returned by the Yahoo symbol search.
type SearchResult struct {
	Symbol    string `json:"symbol" msgpack:"symbol"`
	Sector    string `json:"sector,omitempty" msgpack:"sector"`
	Industry  string `json:"industry,omitempty" msgpack:"industry"`
	LogoURL   string `json:"logo_url,omitempty" msgpack:"logo_url"`
	QuoteType string `json:"quote_type,omitempty" msgpack:"quote_type"`
	Exchange  string `json:"exchange,omitempty" msgpack:"exchange"`
	ShortName string `json:"short_name,omitempty" msgpack:"short_name"`
	LongName  string `json:"long_name,omitempty" msgpack:"long_name"`
}

// QuoteTypeInfo is the instrument description from the quoteType endpoint.
type QuoteTypeInfo struct {
	Symbol    string
	QuoteType string
	Exchange  string
	ShortName string
	LongName  string
}

// Yahoo talks to the public chart, search and quoteType endpoints.
type Yahoo struct {
	base
}

// NewYahoo creates a Yahoo client.
func NewYahoo(opts ...Option) *Yahoo {
	return &Yahoo{base: newBase(DefaultYahooURL, opts)}
}

// Chart returns the latest regular-market price from a recent intraday series.
// Price is nil when the payload carries none.
func (y *Yahoo) Chart(ctx context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	now := y.now().UTC()
	quote := Quote{Symbol: symbol, Timestamp: now}
	if symbol == "" {
		return quote, ErrNoData
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(now.Add(-chartWindow).Unix(), 10))
	params.Set("period2", strconv.FormatInt(now.Unix(), 10))
	params.Set("interval", "1m")
	params.Set("includePrePost", "true")
	params.Set("events", "div|split|earn")
	params.Set("lang", "en-US")
	params.Set("region", "US")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())

	payload, err := y.getJSON(ctx, endpoint)
	if err != nil {
		return quote, err
	}
	meta, _ := lookup(payload, "$.chart.result[0].meta").(map[string]any)
	if meta == nil {
		return quote, ErrNoData
	}
	if cur, ok := meta["currency"].(string); ok {
		quote.Currency = cur
	}
	if ts, ok := meta["regularMarketTime"].(float64); ok && ts > 0 {
		quote.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	if price, ok := meta["regularMarketPrice"].(float64); ok {
		quote.Price = floatPtr(price)
		return quote, nil
	}
	// Older payloads only carry the close series.
	closes, _ := lookup(payload, "$.chart.result[0].indicators.quote[0].close").([]any)
	for i := len(closes) - 1; i >= 0; i-- {
		if price, ok := closes[i].(float64); ok {
			quote.Price = floatPtr(price)
			return quote, nil
		}
	}
	return quote, ErrNoData
}

// Search returns up to ten candidate listings for a free-text query.
func (y *Yahoo) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = NormalizeSymbol(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", "en-US")
	params.Set("region", "US")
	params.Set("quotesCount", "6")
	params.Set("newsCount", "0")
	params.Set("listsCount", "0")
	params.Set("enableFuzzyQuery", "false")
	params.Set("quotesQueryId", "tss_match_phrase_query")
	params.Set("enableLogoUrl", "true")
	params.Set("enablePrivateCompany", "true")
	endpoint := fmt.Sprintf("%s/v1/finance/search?%s", y.baseURL, params.Encode())

	payload, err := y.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	quotes, _ := lookup(payload, "$.quotes").([]any)
	results := make([]SearchResult, 0, len(quotes))
	for _, raw := range quotes {
		q, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sym := str(q, "symbol")
		if sym == "" {
			continue
		}
		logo := str(q, "logoUrl")
		if logo == "" {
			logo = str(q, "logo_url")
		}
		results = append(results, SearchResult{
			Symbol:    sym,
			Sector:    str(q, "sector"),
			Industry:  str(q, "industry"),
			LogoURL:   logo,
			QuoteType: str(q, "quoteType"),
			Exchange:  str(q, "exchDisp"),
			ShortName: str(q, "shortName"),
			LongName:  str(q, "longName"),
		})
		if len(results) == maxSearchResults {
			break
		}
	}
	return results, nil
}

// QuoteType describes a listing. It returns nil when Yahoo does not know the symbol.
func (y *Yahoo) QuoteType(ctx context.Context, symbol string) (*QuoteTypeInfo, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("lang", "en-US")
	params.Set("region", "US")
	params.Set("enablePrivateCompany", "true")
	endpoint := fmt.Sprintf("%s/v1/finance/quoteType/?%s", y.baseURL, params.Encode())

	payload, err := y.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	result, _ := lookup(payload, "$.quoteType.result[0]").(map[string]any)
	if result == nil {
		return nil, nil
	}
	return &QuoteTypeInfo{
		Symbol:    str(result, "symbol"),
		QuoteType: str(result, "quoteType"),
		Exchange:  str(result, "exchange"),
		ShortName: str(result, "shortName"),
		LongName:  str(result, "longName"),
	}, nil
}

func (y *Yahoo) getJSON(ctx context.Context, endpoint string) (any, error) {
	body, err := y.get(ctx, endpoint, browserHeaders)
	if err != nil {
		y.logger.Debug().Err(err).Str("url", endpoint).Msg("yahoo request failed")
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode yahoo payload: %w", err)
	}
	return payload, nil
}

// lookup evaluates a jsonpath expression and returns nil when the path is absent.
func lookup(payload any, path string) any {
	v, err := jsonpath.Get(path, payload)
	if err != nil {
		return nil
	}
	return v
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
