package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/pkg/marketdata"
)

func TestStorePositionsMergeKeepsManualType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPositions(ctx, "p1", []Position{
		{Symbol: "gold", Broker: "Revolut", Type: AssetCommodity, ManualType: true, Quantity: 1, AvgBuyPrice: 1800, Currency: "usd"},
		{Symbol: "AAPL", Broker: "ibkr", Type: "bogus", Quantity: 2, AvgBuyPrice: 150},
	}))
	require.NoError(t, store.UpsertPositions(ctx, "p1", []Position{
		{Symbol: "GOLD", Broker: "revolut", Type: AssetEquity, Quantity: 3, AvgBuyPrice: 1900},
	}))

	positions, err := store.ListPositions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	gold := positions[0]
	assert.Equal(t, "GOLD", gold.Symbol)
	assert.Equal(t, "revolut", gold.Broker)
	assert.Equal(t, AssetCommodity, gold.Type)
	assert.True(t, gold.ManualType)
	assert.Equal(t, 3.0, gold.Quantity)
	assert.Equal(t, "USD", gold.Currency)
	assert.Equal(t, AssetEquity, positions[1].Type)

	other, err := store.ListPositions(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreAppendTransactionsDeduplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	txs := []Transaction{
		buy("AAPL", "ibkr", "2024-01-01", 10, 150),
		buy("AAPL", "ibkr", "2024-01-01", 10, 150),
		sell("AAPL", "ibkr", "2024-01-02", 4, 180),
	}

	added, err := store.AppendTransactions(ctx, "p1", txs)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = store.AppendTransactions(ctx, "p1", txs)
	require.NoError(t, err)
	assert.Zero(t, added)

	stored, err := store.ListTransactions(ctx, "p1", "aapl")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEmpty(t, stored[0].ID)
	assert.Equal(t, -4.0, stored[1].Quantity)

	none, err := store.ListTransactions(ctx, "p1", "MSFT")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreLearnedMappingNeverReplacesOverride(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetMapping(ctx, "p1", "degiro", "vwce", "VWCE.AS"))
	require.NoError(t, store.SaveState(ctx, CycleResult{
		PortfolioID: "p1",
		MappingUpdates: []MappingUpdate{
			{Broker: "degiro", Symbol: "VWCE", MarketSymbol: "VWCE.DE"},
			{Broker: "degiro", Symbol: "NEWCO", MarketSymbol: "NEWCO.L"},
		},
	}))

	state, err := store.LoadState(ctx, "p1")
	require.NoError(t, err)
	v, _ := state.SymbolMapping.Lookup("degiro", "VWCE")
	assert.Equal(t, "VWCE.AS", v)
	v, _ = state.SymbolMapping.Lookup("degiro", "NEWCO")
	assert.Equal(t, "NEWCO.L", v)

	// A user remap replaces a learned mapping.
	require.NoError(t, store.SetMapping(ctx, "p1", "degiro", "NEWCO", "NEWCO.DE"))
	state, err = store.LoadState(ctx, "p1")
	require.NoError(t, err)
	v, _ = state.SymbolMapping.Lookup("degiro", "NEWCO")
	assert.Equal(t, "NEWCO.DE", v)
}

func TestStoreSaveStateSyncsUnmappedAndWarnings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertPositions(ctx, "p1", []Position{{Symbol: "ABC", Broker: "b", Quantity: 1}}))

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveState(ctx, CycleResult{
		PortfolioID: "p1",
		Metadata:    []AssetMetadata{{Symbol: "XYZ", MarketSymbol: "XYZ", Sector: "Technology"}},
		Unmapped:    []string{"ABC", "DEF"},
		Warnings: []Warning{
			{Symbol: "ABC", Name: "Abc", Suggestions: []marketdata.SearchResult{{Symbol: "ABC.DE"}}, CreatedAt: first},
			{Symbol: "DEF", Name: "Def", CreatedAt: first},
		},
	}))

	state, err := store.LoadState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "DEF"}, state.Unmapped)
	assert.True(t, state.Positions[0].Unmapped)
	assert.Equal(t, "Technology", state.Metadata["XYZ"].Sector)

	second := first.Add(time.Hour)
	require.NoError(t, store.SaveState(ctx, CycleResult{
		PortfolioID: "p1",
		Unmapped:    []string{"ABC"},
		Warnings:    []Warning{{Symbol: "ABC", Name: "Abc renamed", CreatedAt: second}},
	}))

	warnings, err := store.ListWarnings(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ABC", warnings[0].Symbol)
	assert.Equal(t, "Abc renamed", warnings[0].Name)
	assert.True(t, warnings[0].CreatedAt.Equal(first))
	assert.Empty(t, warnings[0].Suggestions)

	require.NoError(t, store.SaveState(ctx, CycleResult{PortfolioID: "p1"}))
	warnings, err = store.ListWarnings(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	state, err = store.LoadState(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, state.Unmapped)
	assert.False(t, state.Positions[0].Unmapped)
}

func TestStoreQuoteCache(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadQuote(ctx, ProviderAlphaVantage, "IBM")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveQuote(ctx, ProviderAlphaVantage, marketdata.Quote{Symbol: "ibm", Price: price(150), Currency: "USD", Timestamp: fixedNow}))
	require.NoError(t, store.SaveQuote(ctx, ProviderAlphaVantage, marketdata.Quote{Symbol: "IBM"}))

	q, ok, err := store.LoadQuote(ctx, ProviderAlphaVantage, "IBM")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150.0, *q.Price)
	assert.Equal(t, "USD", q.Currency)
	assert.True(t, q.Timestamp.Equal(fixedNow))
}

func TestStoreSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap, err := store.LatestSnapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveSnapshot(ctx, &Snapshot{
			PortfolioID: "p1",
			CycleID:     string(rune('a' + i)),
			ComputedAt:  fixedNow.Add(time.Duration(i) * 24 * time.Hour),
			Assets: []Asset{{
				Position:    Position{Symbol: "AAPL", Quantity: 6},
				MarketValue: amountPtr(decimalOf(1200.5)),
			}},
			Totals: Totals{TotalValue: NewAmount(1200.5)},
		}))
	}

	latest, err := store.LatestSnapshot(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.CycleID)
	assert.Equal(t, 1200.5, latest.Totals.TotalValue.Float())
	require.Len(t, latest.Assets, 1)
	assert.Equal(t, 1200.5, latest.Assets[0].MarketValue.Float())
	assert.Nil(t, latest.Assets[0].CurrentPrice)

	n, err := store.DeleteSnapshotsBefore(ctx, "p1", fixedNow.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	count, err := store.CountSnapshots(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreSetPositionType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertPositions(ctx, "p1", []Position{
		{Symbol: "X", Broker: "a", Type: AssetEquity},
		{Symbol: "X", Broker: "b", Type: AssetEquity},
	}))

	n, err := store.SetPositionType(ctx, "p1", "x", "", AssetBond, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.SetPositionType(ctx, "p1", "x", "", AssetBond, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.SetManualType(ctx, "p1", "X", "A", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInitDatabaseIsRepeatable(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, initDatabase(store.db))

	tx, err := store.db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	ok, err := tableHasColumn(tx, "symbol_mappings", "learned")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tableHasColumn(tx, "symbol_mappings", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
