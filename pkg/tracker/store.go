package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"investtracker/pkg/marketdata"
)

// StoreOptions controls Store initialization.
type StoreOptions struct {
	DBPath string
	Logger zerolog.Logger
}

// Store persists portfolio state in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	dbPath string
}

// OpenStore opens (and migrates) the database at path.
func OpenStore(path string) (*Store, error) {
	return OpenStoreWithOptions(StoreOptions{DBPath: path, Logger: zerolog.Nop()})
}

// OpenStoreWithOptions opens the database described by opts.
func OpenStoreWithOptions(opts StoreOptions) (*Store, error) {
	if opts.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.DBPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		opts.Logger.Warn().Err(err).Msg("pragma busy_timeout failed")
	}

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	return &Store{db: db, logger: opts.Logger, dbPath: cleanPath}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DBPath returns the underlying database path.
func (s *Store) DBPath() string {
	return s.dbPath
}

// LoadState reads everything a refresh cycle needs for one portfolio.
func (s *Store) LoadState(ctx context.Context, portfolioID string) (State, error) {
	state := State{
		PortfolioID:   portfolioID,
		SymbolMapping: MappingTable{},
		Metadata:      map[string]AssetMetadata{},
	}
	var err error
	if state.Positions, err = s.ListPositions(ctx, portfolioID); err != nil {
		return State{}, err
	}
	if state.Transactions, err = s.ListTransactions(ctx, portfolioID, ""); err != nil {
		return State{}, err
	}
	if state.SymbolMapping, err = s.loadMappings(ctx, portfolioID); err != nil {
		return State{}, err
	}
	if state.Metadata, err = s.loadMetadata(ctx, portfolioID); err != nil {
		return State{}, err
	}
	if state.Unmapped, err = s.loadUnmapped(ctx, portfolioID); err != nil {
		return State{}, err
	}
	return state, nil
}

// ListPositions returns stored positions in insertion order.
func (s *Store) ListPositions(ctx context.Context, portfolioID string) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT broker, symbol, name, asset_type, manual_type, quantity, avg_buy_price, currency, unmapped
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY rowid
	`, portfolioID)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query positions", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var name, currency sql.NullString
		var assetType string
		var manual, unmapped int
		if err := rows.Scan(&p.Broker, &p.Symbol, &name, &assetType, &manual, &p.Quantity, &p.AvgBuyPrice, &currency, &unmapped); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan position", err)
		}
		p.Name = name.String
		p.Currency = currency.String
		p.Type = AssetType(assetType)
		p.ManualType = manual != 0
		p.Unmapped = unmapped != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPositions merges positions by (broker, symbol). An existing manual
// type survives the merge.
func (s *Store) UpsertPositions(ctx context.Context, portfolioID string, positions []Position) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, p := range positions {
			key := p.Key()
			if key.Symbol == "" {
				continue
			}
			t := p.Type
			if _, ok := ParseAssetType(string(t)); !ok {
				t = AssetEquity
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO positions (portfolio_id, broker, symbol, name, asset_type, manual_type, quantity, avg_buy_price, currency, unmapped, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
				ON CONFLICT(portfolio_id, broker, symbol) DO UPDATE SET
					name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE positions.name END,
					asset_type = CASE WHEN positions.manual_type = 1 THEN positions.asset_type ELSE excluded.asset_type END,
					manual_type = CASE WHEN positions.manual_type = 1 THEN 1 ELSE excluded.manual_type END,
					quantity = excluded.quantity,
					avg_buy_price = excluded.avg_buy_price,
					currency = CASE WHEN excluded.currency <> '' THEN excluded.currency ELSE positions.currency END,
					updated_at = CURRENT_TIMESTAMP
			`, portfolioID, key.Broker, key.Symbol, strings.TrimSpace(p.Name), string(t), boolInt(p.ManualType),
				p.Quantity, p.AvgBuyPrice, normalizeCurrency(p.Currency))
			if err != nil {
				return WrapError(ErrCodeDatabase, "upsert position", err)
			}
		}
		return nil
	})
}

// SetPositionType overrides the type of every position holding symbol, or
// only the one at broker when broker is set. It returns the rows changed.
func (s *Store) SetPositionType(ctx context.Context, portfolioID, symbol, broker string, t AssetType, manual bool) (int64, error) {
	query := `UPDATE positions SET asset_type = ?, manual_type = ?, updated_at = CURRENT_TIMESTAMP
		WHERE portfolio_id = ? AND symbol = ? AND (asset_type <> ? OR manual_type <> ?)`
	args := []any{string(t), boolInt(manual), portfolioID, normalizeSymbol(symbol), string(t), boolInt(manual)}
	if strings.TrimSpace(broker) != "" {
		query += " AND broker = ?"
		args = append(args, normalizeBroker(broker))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "update position type", err)
	}
	return res.RowsAffected()
}

// SetManualType sets the manual flag of the matching positions and keeps
// their type.
func (s *Store) SetManualType(ctx context.Context, portfolioID, symbol, broker string, manual bool) (int64, error) {
	query := `UPDATE positions SET manual_type = ?, updated_at = CURRENT_TIMESTAMP
		WHERE portfolio_id = ? AND symbol = ? AND manual_type <> ?`
	args := []any{boolInt(manual), portfolioID, normalizeSymbol(symbol), boolInt(manual)}
	if strings.TrimSpace(broker) != "" {
		query += " AND broker = ?"
		args = append(args, normalizeBroker(broker))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "update manual type", err)
	}
	return res.RowsAffected()
}

// AppendTransactions stores new transactions, skipping those whose dedup key
// is already present. It returns how many rows were inserted.
func (s *Store) AppendTransactions(ctx context.Context, portfolioID string, txs []Transaction) (int, error) {
	added := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range txs {
			if normalizeSymbol(t.Symbol) == "" {
				continue
			}
			id := t.ID
			if id == "" {
				id = uuid.NewString()
			}
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO transactions (id, portfolio_id, dedup_key, symbol, name, quantity, price, currency, broker, tx_date, tx_type)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, id, portfolioID, DedupKey(t), normalizeSymbol(t.Symbol), t.Name, t.Quantity, t.Price,
				normalizeCurrency(t.Currency), normalizeBroker(t.Broker), t.Date, strings.ToUpper(t.Type))
			if err != nil {
				return WrapError(ErrCodeDatabase, "insert transaction", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListTransactions returns stored transactions in insertion order, optionally
// filtered by symbol.
func (s *Store) ListTransactions(ctx context.Context, portfolioID, symbol string) ([]Transaction, error) {
	query := `SELECT id, symbol, name, quantity, price, currency, broker, tx_date, tx_type
		FROM transactions WHERE portfolio_id = ?`
	args := []any{portfolioID}
	if symbol = normalizeSymbol(symbol); symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query transactions", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var name, currency, broker, date, txType sql.NullString
		if err := rows.Scan(&t.ID, &t.Symbol, &name, &t.Quantity, &t.Price, &currency, &broker, &date, &txType); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan transaction", err)
		}
		t.Name = name.String
		t.Currency = currency.String
		t.Broker = broker.String
		t.Date = date.String
		t.Type = txType.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetMapping records a user override. It replaces any learned mapping.
func (s *Store) SetMapping(ctx context.Context, portfolioID, broker, symbol, marketSymbol string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_mappings (portfolio_id, broker, symbol, market_symbol, learned, updated_at)
		VALUES (?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(portfolio_id, broker, symbol) DO UPDATE SET
			market_symbol = excluded.market_symbol,
			learned = 0,
			updated_at = CURRENT_TIMESTAMP
	`, portfolioID, normalizeBroker(broker), normalizeSymbol(symbol), normalizeSymbol(marketSymbol))
	if err != nil {
		return WrapError(ErrCodeDatabase, "save symbol mapping", err)
	}
	return nil
}

func (s *Store) loadMappings(ctx context.Context, portfolioID string) (MappingTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT broker, symbol, market_symbol FROM symbol_mappings WHERE portfolio_id = ?
	`, portfolioID)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query symbol mappings", err)
	}
	defer rows.Close()

	table := MappingTable{}
	for rows.Next() {
		var broker, symbol, market string
		if err := rows.Scan(&broker, &symbol, &market); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan symbol mapping", err)
		}
		table.Set(broker, symbol, market)
	}
	return table, rows.Err()
}

func (s *Store) loadMetadata(ctx context.Context, portfolioID string) (map[string]AssetMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, market_symbol, sector, industry, quote_type, exchange, short_name, long_name, logo_url
		FROM asset_metadata WHERE portfolio_id = ?
	`, portfolioID)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query asset metadata", err)
	}
	defer rows.Close()

	out := map[string]AssetMetadata{}
	for rows.Next() {
		var m AssetMetadata
		var market, sector, industry, quoteType, exchange, shortName, longName, logo sql.NullString
		if err := rows.Scan(&m.Symbol, &market, &sector, &industry, &quoteType, &exchange, &shortName, &longName, &logo); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan asset metadata", err)
		}
		m.MarketSymbol = market.String
		m.Sector = sector.String
		m.Industry = industry.String
		m.QuoteType = quoteType.String
		m.Exchange = exchange.String
		m.ShortName = shortName.String
		m.LongName = longName.String
		m.LogoURL = logo.String
		out[m.Symbol] = m
	}
	return out, rows.Err()
}

func (s *Store) loadUnmapped(ctx context.Context, portfolioID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM unmapped_symbols WHERE portfolio_id = ? ORDER BY symbol
	`, portfolioID)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query unmapped symbols", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan unmapped symbol", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// CycleResult is the delta a successful refresh cycle writes back.
type CycleResult struct {
	PortfolioID    string
	MappingUpdates []MappingUpdate
	Metadata       []AssetMetadata
	Unmapped       []string
	Warnings       []Warning
	Snapshot       *Snapshot
}

// SaveState applies a cycle result in a single transaction. Learned mappings
// never replace a mapping that already exists, so a concurrent user remap
// is kept.
func (s *Store) SaveState(ctx context.Context, res CycleResult) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, upd := range res.MappingUpdates {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO symbol_mappings (portfolio_id, broker, symbol, market_symbol, learned)
				VALUES (?, ?, ?, ?, 1)
				ON CONFLICT(portfolio_id, broker, symbol) DO NOTHING
			`, res.PortfolioID, normalizeBroker(upd.Broker), normalizeSymbol(upd.Symbol), normalizeSymbol(upd.MarketSymbol)); err != nil {
				return WrapError(ErrCodeDatabase, "save learned mapping", err)
			}
		}

		for _, m := range res.Metadata {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO asset_metadata (portfolio_id, symbol, market_symbol, sector, industry, quote_type, exchange, short_name, long_name, logo_url, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
					market_symbol = excluded.market_symbol,
					sector = excluded.sector,
					industry = excluded.industry,
					quote_type = excluded.quote_type,
					exchange = excluded.exchange,
					short_name = excluded.short_name,
					long_name = excluded.long_name,
					logo_url = excluded.logo_url,
					updated_at = CURRENT_TIMESTAMP
			`, res.PortfolioID, normalizeSymbol(m.Symbol), m.MarketSymbol, m.Sector, m.Industry, m.QuoteType,
				m.Exchange, m.ShortName, m.LongName, m.LogoURL); err != nil {
				return WrapError(ErrCodeDatabase, "save asset metadata", err)
			}
		}

		if err := replaceUnmapped(ctx, tx, res.PortfolioID, res.Unmapped); err != nil {
			return err
		}
		if err := syncWarnings(ctx, tx, res.PortfolioID, res.Warnings); err != nil {
			return err
		}
		if res.Snapshot != nil {
			if err := insertSnapshot(ctx, tx, res.Snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

func replaceUnmapped(ctx context.Context, tx *sql.Tx, portfolioID string, symbols []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM unmapped_symbols WHERE portfolio_id = ?", portfolioID); err != nil {
		return WrapError(ErrCodeDatabase, "clear unmapped symbols", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE positions SET unmapped = 0 WHERE portfolio_id = ?", portfolioID); err != nil {
		return WrapError(ErrCodeDatabase, "clear unmapped flags", err)
	}
	for _, sym := range symbols {
		sym = normalizeSymbol(sym)
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO unmapped_symbols (portfolio_id, symbol) VALUES (?, ?)
		`, portfolioID, sym); err != nil {
			return WrapError(ErrCodeDatabase, "save unmapped symbol", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE positions SET unmapped = 1 WHERE portfolio_id = ? AND symbol = ?
		`, portfolioID, sym); err != nil {
			return WrapError(ErrCodeDatabase, "flag unmapped position", err)
		}
	}
	return nil
}

// syncWarnings makes the stored warnings equal to active. Existing warnings
// keep their creation time.
func syncWarnings(ctx context.Context, tx *sql.Tx, portfolioID string, active []Warning) error {
	keep := make([]any, 0, len(active)+1)
	keep = append(keep, portfolioID)
	placeholders := make([]string, 0, len(active))
	for _, w := range active {
		suggestions, err := json.Marshal(w.Suggestions)
		if err != nil {
			return WrapError(ErrCodeInternal, "encode warning suggestions", err)
		}
		created := w.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		sym := normalizeSymbol(w.Symbol)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO warnings (portfolio_id, symbol, name, suggestions, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
				name = excluded.name,
				suggestions = excluded.suggestions
		`, portfolioID, sym, w.Name, suggestions, formatTime(created)); err != nil {
			return WrapError(ErrCodeDatabase, "save warning", err)
		}
		keep = append(keep, sym)
		placeholders = append(placeholders, "?")
	}

	query := "DELETE FROM warnings WHERE portfolio_id = ?"
	if len(placeholders) > 0 {
		query += " AND symbol NOT IN (" + strings.Join(placeholders, ",") + ")"
	}
	if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
		return WrapError(ErrCodeDatabase, "clear resolved warnings", err)
	}
	return nil
}

// ListWarnings returns the open warnings of a portfolio ordered by symbol.
func (s *Store) ListWarnings(ctx context.Context, portfolioID string) ([]Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, suggestions, created_at FROM warnings
		WHERE portfolio_id = ? ORDER BY symbol
	`, portfolioID)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query warnings", err)
	}
	defer rows.Close()

	out := []Warning{}
	for rows.Next() {
		w := Warning{PortfolioID: portfolioID}
		var name sql.NullString
		var suggestions []byte
		var created string
		if err := rows.Scan(&w.Symbol, &name, &suggestions, &created); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan warning", err)
		}
		w.Name = name.String
		w.CreatedAt = parseTime(created)
		if len(suggestions) > 0 {
			if err := json.Unmarshal(suggestions, &w.Suggestions); err != nil {
				s.logger.Warn().Err(err).Str("symbol", w.Symbol).Msg("decode warning suggestions failed")
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// LoadQuote returns the last good quote stored for provider and symbol.
func (s *Store) LoadQuote(ctx context.Context, provider Provider, symbol string) (marketdata.Quote, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT price, currency, quoted_at FROM quote_cache WHERE provider = ? AND symbol = ?
	`, string(provider), normalizeSymbol(symbol))
	var price sql.NullFloat64
	var currency sql.NullString
	var quotedAt string
	if err := row.Scan(&price, &currency, &quotedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return marketdata.Quote{}, false, nil
		}
		return marketdata.Quote{}, false, WrapError(ErrCodeDatabase, "load cached quote", err)
	}
	if !price.Valid {
		return marketdata.Quote{}, false, nil
	}
	p := price.Float64
	return marketdata.Quote{
		Symbol:    normalizeSymbol(symbol),
		Price:     &p,
		Currency:  currency.String,
		Timestamp: parseTime(quotedAt),
	}, true, nil
}

// SaveQuote overwrites the last good quote of provider for quote.Symbol.
func (s *Store) SaveQuote(ctx context.Context, provider Provider, quote marketdata.Quote) error {
	if !quote.HasPrice() {
		return nil
	}
	ts := quote.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_cache (provider, symbol, price, currency, quoted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, symbol) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			quoted_at = excluded.quoted_at
	`, string(provider), normalizeSymbol(quote.Symbol), *quote.Price, quote.Currency, formatTime(ts))
	if err != nil {
		return WrapError(ErrCodeDatabase, "save cached quote", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		return WrapError(ErrCodeInternal, "encode snapshot", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (portfolio_id, cycle_id, computed_at, payload) VALUES (?, ?, ?, ?)
	`, snap.PortfolioID, snap.CycleID, formatTime(snap.ComputedAt), payload); err != nil {
		return WrapError(ErrCodeDatabase, "save snapshot", err)
	}
	return nil
}

// LatestSnapshot returns the most recent stored snapshot, or nil if none.
func (s *Store) LatestSnapshot(ctx context.Context, portfolioID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots WHERE portfolio_id = ? ORDER BY id DESC LIMIT 1
	`, portfolioID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, WrapError(ErrCodeDatabase, "load snapshot", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, WrapError(ErrCodeInternal, "decode snapshot", err)
	}
	return &snap, nil
}

// DeleteSnapshotsBefore purges snapshots computed before cutoff. The most
// recent snapshot is always kept.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, portfolioID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE portfolio_id = ? AND computed_at < ?
		  AND id <> (SELECT MAX(id) FROM snapshots WHERE portfolio_id = ?)
	`, portfolioID, formatTime(cutoff), portfolioID)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "delete snapshots", err)
	}
	return res.RowsAffected()
}

// CountSnapshots returns how many snapshots are stored for a portfolio.
func (s *Store) CountSnapshots(ctx context.Context, portfolioID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE portfolio_id = ?", portfolioID).Scan(&n); err != nil {
		return 0, WrapError(ErrCodeDatabase, "count snapshots", err)
	}
	return n, nil
}

// SaveSnapshot stores a snapshot outside a full cycle.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return insertSnapshot(ctx, tx, snap)
	})
}
