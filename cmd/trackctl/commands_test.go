package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/internal/config"
	"investtracker/pkg/tracker"
)

func setup(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"TRACKER_DATA_DIR", "TRACKER_DB_PATH", "TRACKER_HOST", "TRACKER_PORT", "TRACKER_LOG_LEVEL", "TRACKER_LOG_FORMAT", "TRACKER_ALPHAVANTAGE_KEY"} {
		t.Setenv(key, "")
	}
	body := "[[portfolios]]\nid = \"main\"\nmarket_data_provider = \"stooq\"\nbase_currency = \"USD\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0o644))

	origOut, origErr, origGlobals := stdout, stderr, globals
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	stdout, stderr = out, errOut
	globals.dataDir = dir
	globals.configPath = ""
	globals.logLevel = "error"
	t.Cleanup(func() {
		stdout, stderr, globals = origOut, origErr, origGlobals
		config.SetRuntimeDataDir("")
	})
	return out, errOut
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs)
}

func TestSnapshotBeforeRefreshFails(t *testing.T) {
	_, errOut := setup(t)

	status := execute(t, &snapshotCmd{})
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, errOut.String(), "no snapshot stored yet")
}

func TestRefreshThenSnapshot(t *testing.T) {
	out, errOut := setup(t)

	require.Equal(t, subcommands.ExitSuccess, execute(t, &refreshCmd{}), errOut.String())
	assert.Contains(t, out.String(), "Total value:      $0.00")

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, execute(t, &snapshotCmd{}, "-json"), errOut.String())
	var snap tracker.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "main", snap.PortfolioID)
	assert.Equal(t, "USD", snap.BaseCurrency)

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, execute(t, &snapshotCmd{}, "-p", "main"))
	assert.Contains(t, out.String(), "Portfolio main (USD)")
	assert.Contains(t, out.String(), "SYMBOL")
}

func TestUnknownPortfolio(t *testing.T) {
	_, errOut := setup(t)

	status := execute(t, &warningsCmd{}, "-p", "nope")
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.NotEmpty(t, errOut.String())
}

func TestWarningsEmpty(t *testing.T) {
	out, _ := setup(t)

	require.Equal(t, subcommands.ExitSuccess, execute(t, &warningsCmd{}))
	assert.Equal(t, "No open warnings\n", out.String())
}

func TestRemapRequiresSymbol(t *testing.T) {
	_, errOut := setup(t)

	status := execute(t, &remapCmd{}, "-ticker", "AAPL")
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.NotEmpty(t, errOut.String())
}

func TestImportWithoutImportDir(t *testing.T) {
	_, errOut := setup(t)

	assert.Equal(t, subcommands.ExitFailure, execute(t, &importCmd{}))
	assert.Contains(t, errOut.String(), "import_dir is not configured")
}

func TestPurgeCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	got, err := (&purgeCmd{before: "2024-01-02"}).cutoff(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)

	got, err = (&purgeCmd{days: 10}).cutoff(now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -10), got)

	_, err = (&purgeCmd{before: "yesterday"}).cutoff(now)
	assert.True(t, tracker.IsErrorCode(err, tracker.ErrCodeInvalidInput))

	_, err = (&purgeCmd{}).cutoff(now)
	assert.True(t, tracker.IsErrorCode(err, tracker.ErrCodeInvalidInput))
}

func TestPurgeWithoutCutoffIsUsageError(t *testing.T) {
	_, errOut := setup(t)

	assert.Equal(t, subcommands.ExitUsageError, execute(t, &purgeCmd{}))
	assert.Contains(t, errOut.String(), "-before or -days")
}

func TestPurgeKeepsLatest(t *testing.T) {
	out, errOut := setup(t)

	require.Equal(t, subcommands.ExitSuccess, execute(t, &refreshCmd{}), errOut.String())
	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, execute(t, &purgeCmd{}, "-before", "2999-01-01"), errOut.String())
	assert.Equal(t, "Deleted 0 snapshots\n", out.String())
}

func TestPrintSnapshotMarksStale(t *testing.T) {
	price := 12.5
	value := tracker.NewAmount(125)
	snap := tracker.Snapshot{
		PortfolioID:  "main",
		BaseCurrency: "EUR",
		ComputedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Stale:        true,
		LastError:    "provider down",
		Assets: []tracker.Asset{{
			Position:     tracker.Position{Symbol: "VWCE", Broker: "ibkr", Type: tracker.AssetETF, Quantity: 10},
			CurrentPrice: &price,
			MarketValue:  &value,
		}},
	}
	var buf bytes.Buffer
	printSnapshot(&buf, snap)

	assert.Contains(t, buf.String(), "[stale: provider down]")
	assert.Contains(t, buf.String(), "VWCE")
	assert.Contains(t, buf.String(), "12.50")
}
