package tracker

import (
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		portfolio_id TEXT NOT NULL,
		broker TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT,
		asset_type TEXT NOT NULL DEFAULT 'equity',
		manual_type INTEGER NOT NULL DEFAULT 0,
		quantity REAL NOT NULL DEFAULT 0,
		avg_buy_price REAL NOT NULL DEFAULT 0,
		currency TEXT,
		unmapped INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (portfolio_id, broker, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		portfolio_id TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT,
		quantity REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		currency TEXT,
		broker TEXT,
		tx_date TEXT,
		tx_type TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (portfolio_id, dedup_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(portfolio_id, symbol)`,
	`CREATE TABLE IF NOT EXISTS symbol_mappings (
		portfolio_id TEXT NOT NULL,
		broker TEXT NOT NULL,
		symbol TEXT NOT NULL,
		market_symbol TEXT NOT NULL,
		learned INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (portfolio_id, broker, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS asset_metadata (
		portfolio_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		market_symbol TEXT,
		sector TEXT,
		industry TEXT,
		quote_type TEXT,
		exchange TEXT,
		short_name TEXT,
		long_name TEXT,
		logo_url TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS unmapped_symbols (
		portfolio_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS warnings (
		portfolio_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT,
		suggestions BLOB,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS quote_cache (
		provider TEXT NOT NULL,
		symbol TEXT NOT NULL,
		price REAL,
		currency TEXT,
		quoted_at DATETIME NOT NULL,
		PRIMARY KEY (provider, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		computed_at DATETIME NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_portfolio ON snapshots(portfolio_id, computed_at)`,
}

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range schemaStatements {
		if err := exec(tx, stmt); err != nil {
			return err
		}
	}

	// Databases created before mappings were tagged as learned lack the column.
	hasLearned, err := tableHasColumn(tx, "symbol_mappings", "learned")
	if err != nil {
		return err
	}
	if !hasLearned {
		if err := exec(tx, "ALTER TABLE symbol_mappings ADD COLUMN learned INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	if _, err := tx.Exec(query); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
