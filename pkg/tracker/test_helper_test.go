package tracker

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investtracker/pkg/marketdata"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// setupTestStore opens a store in a temp dir that is removed with the test.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func price(v float64) *float64 { return &v }

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func buy(symbol, broker, date string, qty, px float64) Transaction {
	return Transaction{Symbol: symbol, Broker: broker, Date: date, Quantity: qty, Price: px, Currency: "USD"}
}

func sell(symbol, broker, date string, qty, px float64) Transaction {
	return Transaction{Symbol: symbol, Broker: broker, Date: date, Quantity: -qty, Price: px, Currency: "USD"}
}

// fakeQuotes answers Chart, Quote and GlobalQuote from a price table.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  []string
	key    bool
}

func newFakeQuotes(prices map[string]float64) *fakeQuotes {
	return &fakeQuotes{prices: prices, key: true}
}

func (f *fakeQuotes) lookup(kind, symbol string) (marketdata.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind+":"+symbol)
	if f.err != nil {
		return marketdata.Quote{}, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return marketdata.Quote{}, marketdata.ErrNoData
	}
	return marketdata.Quote{Symbol: symbol, Price: price(p), Currency: "USD", Timestamp: fixedNow}, nil
}

func (f *fakeQuotes) Chart(_ context.Context, symbol string) (marketdata.Quote, error) {
	return f.lookup("chart", symbol)
}

func (f *fakeQuotes) Quote(_ context.Context, symbol string) (marketdata.Quote, error) {
	return f.lookup("suffix", symbol)
}

func (f *fakeQuotes) GlobalQuote(_ context.Context, symbol string) (marketdata.Quote, error) {
	return f.lookup("keyed", symbol)
}

func (f *fakeQuotes) HasKey() bool { return f.key }

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSearch returns canned search results and quote types.
type fakeSearch struct {
	results    map[string][]marketdata.SearchResult
	quoteTypes map[string]*marketdata.QuoteTypeInfo
	queries    []string
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]marketdata.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

func (f *fakeSearch) QuoteType(_ context.Context, symbol string) (*marketdata.QuoteTypeInfo, error) {
	return f.quoteTypes[symbol], nil
}

// memoryCache is an in-memory LastValueCache.
type memoryCache struct {
	quotes map[string]marketdata.Quote
}

func (m *memoryCache) LoadQuote(_ context.Context, provider Provider, symbol string) (marketdata.Quote, bool, error) {
	q, ok := m.quotes[string(provider)+"|"+symbol]
	return q, ok, nil
}

func (m *memoryCache) SaveQuote(_ context.Context, provider Provider, q marketdata.Quote) error {
	if m.quotes == nil {
		m.quotes = map[string]marketdata.Quote{}
	}
	m.quotes[string(provider)+"|"+q.Symbol] = q
	return nil
}
