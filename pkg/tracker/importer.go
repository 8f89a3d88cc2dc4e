package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const transactionsFileSuffix = "_transactions"

// ImportBatch is the parsed content of an import directory.
type ImportBatch struct {
	Positions    []Position
	Transactions []Transaction
	Files        []string
}

// Empty reports whether the batch carries no records.
func (b ImportBatch) Empty() bool {
	return len(b.Positions) == 0 && len(b.Transactions) == 0
}

// ScanImportDir parses every unprocessed CSV in dir. A file named
// <broker>_transactions.csv is a transaction log for that broker; any other
// CSV is a position snapshot whose default broker is the file stem.
// Unreadable files are logged and skipped.
func ScanImportDir(dir, baseCurrency string, logger zerolog.Logger) (ImportBatch, error) {
	var batch ImportBatch
	if strings.TrimSpace(dir) == "" {
		return batch, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return batch, nil
		}
		return batch, WrapError(ErrCodeInvalidInput, "read import dir", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("open import file failed")
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if broker, ok := strings.CutSuffix(strings.ToLower(stem), transactionsFileSuffix); ok {
			txs := ParseTransactionsCSV(f, broker, baseCurrency)
			batch.Transactions = append(batch.Transactions, txs...)
			logger.Info().Str("file", name).Int("transactions", len(txs)).Msg("parsed transaction log")
		} else {
			positions := ParsePositionsCSV(f, stem)
			batch.Positions = append(batch.Positions, positions...)
			logger.Info().Str("file", name).Int("positions", len(positions)).Msg("parsed position snapshot")
		}
		_ = f.Close()
		batch.Files = append(batch.Files, path)
	}
	return batch, nil
}

// MarkProcessed renames imported files to <name>.processed.<unix-ts> so the
// next scan ignores them.
func MarkProcessed(files []string, now time.Time) error {
	for _, path := range files {
		target := fmt.Sprintf("%s.processed.%d", path, now.Unix())
		if err := os.Rename(path, target); err != nil {
			return WrapError(ErrCodeInternal, "rename processed file", err)
		}
	}
	return nil
}
