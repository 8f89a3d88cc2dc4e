package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// MinUpdateInterval is the shortest allowed refresh period.
const MinUpdateInterval = 15 * time.Minute

// PortfolioConfig describes one tracked portfolio.
type PortfolioConfig struct {
	ID             string
	Name           string
	BaseCurrency   string
	Provider       Provider
	UpdateInterval time.Duration
	ImportDir      string
	DefaultBroker  string
}

// Interval returns the refresh period, floored to MinUpdateInterval.
func (c PortfolioConfig) Interval() time.Duration {
	if c.UpdateInterval < MinUpdateInterval {
		return MinUpdateInterval
	}
	return c.UpdateInterval
}

// Options wires a Tracker to its collaborators.
type Options struct {
	Config   PortfolioConfig
	Store    *Store
	Resolver *Resolver
	Quotes   *QuoteAggregator
	Enricher *Enricher
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Tracker owns the refresh cycle of one portfolio. At most one cycle runs at
// a time; concurrent callers share its result.
type Tracker struct {
	cfg      PortfolioConfig
	store    *Store
	resolver *Resolver
	quotes   *QuoteAggregator
	enricher *Enricher
	logger   zerolog.Logger
	now      func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
	onManual func()
}

// NewTracker creates a Tracker and restores its last persisted snapshot.
func NewTracker(ctx context.Context, opts Options) (*Tracker, error) {
	if strings.TrimSpace(opts.Config.ID) == "" {
		return nil, NewError(ErrCodeInvalidInput, "portfolio id is required")
	}
	if opts.Store == nil {
		return nil, NewError(ErrCodeInvalidInput, "store is required")
	}
	if _, ok := ParseProvider(string(opts.Config.Provider)); !ok {
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("unknown market data provider %q", opts.Config.Provider))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(ResolverOptions{Logger: opts.Logger})
	}
	quotes := opts.Quotes
	if quotes == nil {
		quotes = NewQuoteAggregator(QuoteAggregatorOptions{Logger: opts.Logger, Now: now})
	}
	cfg := opts.Config
	cfg.BaseCurrency = normalizeCurrency(cfg.BaseCurrency)

	t := &Tracker{
		cfg:      cfg,
		store:    opts.Store,
		resolver: resolver,
		quotes:   quotes,
		enricher: opts.Enricher,
		logger:   opts.Logger.With().Str("portfolio", cfg.ID).Logger(),
		now:      now,
	}
	snap, err := t.store.LatestSnapshot(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	t.snapshot = snap
	return t, nil
}

// ID returns the portfolio id.
func (t *Tracker) ID() string { return t.cfg.ID }

// Config returns the portfolio configuration.
func (t *Tracker) Config() PortfolioConfig { return t.cfg }

// Snapshot returns a copy of the last computed snapshot.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshot == nil {
		return Snapshot{}, false
	}
	return *t.snapshot, true
}

func (t *Tracker) setManualHook(fn func()) {
	t.mu.Lock()
	t.onManual = fn
	t.mu.Unlock()
}

// RequestRefresh runs a user-triggered refresh and restarts the periodic timer.
func (t *Tracker) RequestRefresh(ctx context.Context) (Snapshot, error) {
	t.mu.RLock()
	hook := t.onManual
	t.mu.RUnlock()
	if hook != nil {
		hook()
	}
	return t.Refresh(ctx)
}

// Refresh runs a full cycle. A request made while a cycle is in flight waits
// for that cycle instead of starting another one.
func (t *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	v, err, shared := t.group.Do("refresh", func() (any, error) {
		return t.runCycle(ctx)
	})
	if shared {
		t.logger.Debug().Msg("refresh coalesced with in-flight cycle")
	}
	if err != nil {
		if snap, ok := t.Snapshot(); ok {
			return snap, err
		}
		return Snapshot{}, err
	}
	return *(v.(*Snapshot)), nil
}

func (t *Tracker) runCycle(ctx context.Context) (snap *Snapshot, err error) {
	start := t.now()
	defer func() {
		if p := recover(); p != nil {
			err = WrapError(ErrCodeInternal, "refresh cycle panicked", fmt.Errorf("%v", p))
		}
		if err != nil {
			t.markStale(err)
			t.logger.Error().Err(err).Int64("duration_ms", t.now().Sub(start).Milliseconds()).Msg("refresh cycle failed")
		}
	}()

	if err := canceled(ctx); err != nil {
		return nil, err
	}
	state, err := t.store.LoadState(ctx, t.cfg.ID)
	if err != nil {
		return nil, err
	}
	t.logger.Info().Int("positions", len(state.Positions)).Int("transactions", len(state.Transactions)).Msg("refresh cycle started")

	txs := Deduplicate(state.Transactions)
	positions := Replay(state.Positions, txs)

	resolutions, updates := t.resolver.ResolveAll(ctx, state.SymbolMapping, positions, t.cfg.BaseCurrency, t.cfg.Provider)
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	metadata := make(map[string]AssetMetadata, len(state.Metadata))
	for k, v := range state.Metadata {
		metadata[k] = v
	}
	var learned []AssetMetadata
	if t.cfg.Provider == ProviderYahoo {
		learned = t.enricher.Enrich(ctx, positions, resolutions, state.Metadata)
		for _, m := range learned {
			metadata[m.Symbol] = m
		}
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	quotes := t.quotes.Fetch(ctx, t.cfg.Provider, t.quoteRequests(state.SymbolMapping, positions, resolutions, metadata))
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	assets, totals := Value(ValuationInput{
		Positions:    positions,
		Resolutions:  resolutions,
		Quotes:       quotes,
		Metadata:     metadata,
		Transactions: txs,
	})
	now := t.now().UTC()
	snap = &Snapshot{
		PortfolioID:     t.cfg.ID,
		CycleID:         uuid.NewString(),
		BaseCurrency:    t.cfg.BaseCurrency,
		Provider:        t.cfg.Provider,
		Assets:          assets,
		Totals:          totals,
		UnmappedSymbols: unmappedSymbols(assets),
		ComputedAt:      now,
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	if err := t.store.SaveState(ctx, CycleResult{
		PortfolioID:    t.cfg.ID,
		MappingUpdates: updates,
		Metadata:       learned,
		Unmapped:       snap.UnmappedSymbols,
		Warnings:       warningsFor(t.cfg.ID, assets, now),
		Snapshot:       snap,
	}); err != nil {
		if cerr := canceled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	t.mu.Lock()
	t.snapshot = snap
	t.mu.Unlock()

	t.logger.Info().
		Int("symbols", len(assets)).
		Int("unmapped", len(snap.UnmappedSymbols)).
		Int("learned_mappings", len(updates)).
		Int64("duration_ms", t.now().Sub(start).Milliseconds()).
		Msg("refresh cycle finished")
	return snap, nil
}

// quoteRequests builds one request per market symbol. A position resolved as a
// commodity, or valued as one, goes to the suffix provider. The fallback symbol
// is the static mapping.
func (t *Tracker) quoteRequests(mapping MappingTable, positions []Position, resolutions map[PositionKey]Resolution, metadata map[string]AssetMetadata) []QuoteRequest {
	seen := map[string]struct{}{}
	var reqs []QuoteRequest
	for _, pos := range positions {
		key := pos.Key()
		res, ok := resolutions[key]
		if !ok || res.MarketSymbol == "" {
			continue
		}
		if _, dup := seen[res.MarketSymbol]; dup {
			continue
		}
		seen[res.MarketSymbol] = struct{}{}
		var meta *AssetMetadata
		if m, ok := metadata[key.Symbol]; ok {
			meta = &m
		}
		reqs = append(reqs, QuoteRequest{
			Symbol:    res.MarketSymbol,
			Fallback:  t.resolver.MapStatic(mapping, key.Broker, key.Symbol).MarketSymbol,
			Commodity: res.Source == SourceCommodity || effectiveType(pos, meta) == AssetCommodity,
		})
	}
	return reqs
}

func warningsFor(portfolioID string, assets []Asset, now time.Time) []Warning {
	var out []Warning
	seen := map[string]struct{}{}
	for _, a := range assets {
		if !a.Unmapped {
			continue
		}
		if _, dup := seen[a.Symbol]; dup {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, Warning{
			PortfolioID: portfolioID,
			Symbol:      a.Symbol,
			Name:        a.DisplayName,
			Suggestions: a.RepairSuggestions,
			CreatedAt:   now,
		})
	}
	return out
}

// markStale keeps the last snapshot visible and records why it is stale.
func (t *Tracker) markStale(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot == nil {
		t.snapshot = &Snapshot{
			PortfolioID:  t.cfg.ID,
			BaseCurrency: t.cfg.BaseCurrency,
			Provider:     t.cfg.Provider,
			Assets:       []Asset{},
		}
	}
	next := *t.snapshot
	next.Stale = true
	next.LastError = err.Error()
	t.snapshot = &next
}

// RefreshAsset re-prices the matching assets through the suffix-probing
// provider and recomputes the totals, keeping the realized and invested
// figures of the last cycle.
func (t *Tracker) RefreshAsset(ctx context.Context, symbol, broker string) (Snapshot, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Snapshot{}, NewError(ErrCodeInvalidInput, "symbol is required")
	}
	current, ok := t.Snapshot()
	if !ok || current.CycleID == "" {
		return Snapshot{}, NewError(ErrCodeNotFound, "portfolio has not been refreshed yet")
	}

	assets := make([]Asset, len(current.Assets))
	copy(assets, current.Assets)
	matched := 0
	for i := range assets {
		a := &assets[i]
		if a.Symbol != symbol || (broker != "" && a.Broker != normalizeBroker(broker)) {
			continue
		}
		matched++
		q := t.quotes.FetchSuffix(ctx, a.MarketSymbol)
		if !q.HasPrice() {
			t.logger.Warn().Str("symbol", a.Symbol).Str("provider", serviceStooq).Msg("asset refresh returned no price")
			continue
		}
		a.CurrentPrice = q.Price
		a.QuoteCurrency = q.Currency
		a.LastPriceUpdate = q.Timestamp
		applyValuation(a)
	}
	if matched == 0 {
		return Snapshot{}, NewError(ErrCodeNotFound, fmt.Sprintf("asset %s not found", symbol))
	}
	if err := canceled(ctx); err != nil {
		return Snapshot{}, err
	}

	next := current
	next.Assets = assets
	next.Totals = computeTotals(assets, current.Totals.TotalProfitLossRealized.Float(), current.Totals.TotalInvested.Float())
	next.CycleID = uuid.NewString()
	next.ComputedAt = t.now().UTC()
	next.Stale = false
	next.LastError = ""
	if err := t.store.SaveSnapshot(ctx, &next); err != nil {
		return Snapshot{}, err
	}

	t.mu.Lock()
	t.snapshot = &next
	t.mu.Unlock()
	return next, nil
}

// RemapRequest is a user correction for one symbol.
type RemapRequest struct {
	Symbol   string `json:"symbol"`
	Broker   string `json:"broker,omitempty"`
	Ticker   string `json:"ticker,omitempty"`
	Category string `json:"category,omitempty"`
	// Manual pins Category against later classification.
	Manual bool `json:"manual,omitempty"`
}

// RemapResult reports what a remap changed.
type RemapResult struct {
	Changed  bool      `json:"changed"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// RemapSymbol stores a ticker override and/or a type override for symbol,
// then refreshes if anything changed. Without a broker the override applies
// to every broker holding the symbol.
func (t *Tracker) RemapSymbol(ctx context.Context, req RemapRequest) (RemapResult, error) {
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		return RemapResult{}, NewError(ErrCodeInvalidInput, "symbol is required")
	}
	ticker := normalizeSymbol(req.Ticker)
	category := strings.TrimSpace(req.Category)
	if ticker == "" && category == "" {
		return RemapResult{}, NewError(ErrCodeInvalidInput, "ticker or category is required")
	}
	var assetType AssetType
	if category != "" {
		var ok bool
		if assetType, ok = ParseAssetType(category); !ok {
			return RemapResult{}, NewError(ErrCodeValidation, fmt.Sprintf("invalid category %q", category))
		}
	}

	state, err := t.store.LoadState(ctx, t.cfg.ID)
	if err != nil {
		return RemapResult{}, err
	}
	brokers := t.remapBrokers(state, symbol, req.Broker)

	changed := false
	if ticker != "" {
		for _, b := range brokers {
			if current, ok := state.SymbolMapping.Lookup(b, symbol); ok && current == ticker {
				continue
			}
			if err := t.store.SetMapping(ctx, t.cfg.ID, b, symbol, ticker); err != nil {
				return RemapResult{}, err
			}
			changed = true
		}
	}

	var n int64
	if assetType != "" {
		n, err = t.store.SetPositionType(ctx, t.cfg.ID, symbol, req.Broker, assetType, req.Manual)
	} else {
		n, err = t.store.SetManualType(ctx, t.cfg.ID, symbol, req.Broker, req.Manual)
	}
	if err != nil {
		return RemapResult{}, err
	}
	changed = changed || n > 0

	t.logger.Info().Str("symbol", symbol).Str("ticker", ticker).Str("category", category).Bool("changed", changed).Msg("symbol remapped")
	if !changed {
		return RemapResult{}, nil
	}
	snap, err := t.RequestRefresh(ctx)
	if err != nil {
		return RemapResult{Changed: true}, err
	}
	return RemapResult{Changed: true, Snapshot: &snap}, nil
}

func (t *Tracker) remapBrokers(state State, symbol, broker string) []string {
	if strings.TrimSpace(broker) != "" {
		return []string{normalizeBroker(broker)}
	}
	var out []string
	for _, p := range state.Positions {
		if p.Key().Symbol == symbol {
			out = append(out, p.Key().Broker)
		}
	}
	for _, tx := range state.Transactions {
		if normalizeSymbol(tx.Symbol) == symbol {
			out = append(out, normalizeBroker(tx.Broker))
		}
	}
	out = dedupeStrings(out)
	if len(out) == 0 {
		out = []string{normalizeBroker(t.cfg.DefaultBroker)}
	}
	return out
}

// DeleteHistory purges stored snapshots computed before cutoff.
func (t *Tracker) DeleteHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, NewError(ErrCodeInvalidInput, "cutoff is required")
	}
	n, err := t.store.DeleteSnapshotsBefore(ctx, t.cfg.ID, cutoff)
	if err != nil {
		return 0, err
	}
	t.logger.Info().Int64("deleted", n).Time("before", cutoff).Msg("snapshot history purged")
	return n, nil
}

// ImportResult reports what an import stored.
type ImportResult struct {
	Positions    int      `json:"positions"`
	Transactions int      `json:"transactions"`
	Files        []string `json:"files"`
}

// Import loads the CSV files of the import directory, stores their records
// and marks the files processed. A refresh follows when records were added.
func (t *Tracker) Import(ctx context.Context) (ImportResult, error) {
	if t.cfg.ImportDir == "" {
		return ImportResult{}, NewError(ErrCodeUnsupported, "import_dir is not configured")
	}
	batch, err := ScanImportDir(t.cfg.ImportDir, t.cfg.BaseCurrency, t.logger)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Files: batch.Files}
	if len(batch.Files) == 0 {
		return res, nil
	}
	if !batch.Empty() {
		if err := t.store.UpsertPositions(ctx, t.cfg.ID, batch.Positions); err != nil {
			return res, err
		}
		res.Positions = len(batch.Positions)
		if res.Transactions, err = t.store.AppendTransactions(ctx, t.cfg.ID, batch.Transactions); err != nil {
			return res, err
		}
	}
	if err := MarkProcessed(batch.Files, t.now()); err != nil {
		return res, err
	}
	t.logger.Info().Int("files", len(batch.Files)).Int("positions", res.Positions).Int("transactions", res.Transactions).Msg("import finished")
	if res.Positions == 0 && res.Transactions == 0 {
		return res, nil
	}
	if _, err := t.RequestRefresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Warn().Err(err).Msg("refresh after import failed")
	}
	return res, nil
}

// AddPositions stores manually entered positions.
func (t *Tracker) AddPositions(ctx context.Context, positions []Position) error {
	for i := range positions {
		p := &positions[i]
		if normalizeSymbol(p.Symbol) == "" {
			return NewError(ErrCodeInvalidInput, "position symbol is required")
		}
		if p.Quantity < 0 || p.AvgBuyPrice < 0 {
			return NewError(ErrCodeValidation, fmt.Sprintf("position %s has negative quantity or price", p.Symbol))
		}
		if p.Type != "" {
			at, ok := ParseAssetType(string(p.Type))
			if !ok {
				return NewError(ErrCodeValidation, fmt.Sprintf("invalid type %q", p.Type))
			}
			p.Type = at
		}
		if strings.TrimSpace(p.Broker) == "" {
			p.Broker = t.cfg.DefaultBroker
		}
		if p.Currency == "" {
			p.Currency = t.cfg.BaseCurrency
		}
	}
	return t.store.UpsertPositions(ctx, t.cfg.ID, positions)
}

// AddTransactions stores manually entered transactions and returns how many
// were new.
func (t *Tracker) AddTransactions(ctx context.Context, txs []Transaction) (int, error) {
	for i := range txs {
		tx := &txs[i]
		if normalizeSymbol(tx.Symbol) == "" {
			return 0, NewError(ErrCodeInvalidInput, "transaction symbol is required")
		}
		if tx.Quantity == 0 {
			return 0, NewError(ErrCodeValidation, fmt.Sprintf("transaction %s has zero quantity", tx.Symbol))
		}
		if strings.TrimSpace(tx.Date) != "" && ParseDate(tx.Date).Equal(MinDate) {
			return 0, NewError(ErrCodeValidation, fmt.Sprintf("invalid date %q", tx.Date))
		}
		if strings.TrimSpace(tx.Broker) == "" {
			tx.Broker = t.cfg.DefaultBroker
		}
		if tx.Currency == "" {
			tx.Currency = t.cfg.BaseCurrency
		}
	}
	return t.store.AppendTransactions(ctx, t.cfg.ID, txs)
}

// Transactions lists stored transactions, optionally for one symbol.
func (t *Tracker) Transactions(ctx context.Context, symbol string) ([]Transaction, error) {
	return t.store.ListTransactions(ctx, t.cfg.ID, symbol)
}

// Warnings lists the open warnings of the portfolio.
func (t *Tracker) Warnings(ctx context.Context) ([]Warning, error) {
	return t.store.ListWarnings(ctx, t.cfg.ID)
}
