package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/internal/config"
	"investtracker/pkg/tracker"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"TRACKER_DB_PATH", "TRACKER_HOST", "TRACKER_PORT", "TRACKER_LOG_LEVEL", "TRACKER_LOG_FORMAT", "TRACKER_ALPHAVANTAGE_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("TRACKER_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0o644))
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildWiresEveryPortfolio(t *testing.T) {
	cfg := loadConfig(t, `
[[portfolios]]
id = "main"
market_data_provider = "stooq"
base_currency = "USD"

[[portfolios]]
id = "av"
market_data_provider = "alpha_vantage"
api_key = "demo"
`)

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.Trackers, 2)
	assert.Equal(t, filepath.Join(cfg.DataDir, config.DefaultDBName), a.Store.DBPath())
	assert.NotNil(t, a.Router)

	tr, err := a.Tracker("av")
	require.NoError(t, err)
	assert.Equal(t, tracker.ProviderAlphaVantage, tr.Config().Provider)

	_, err = a.Tracker("missing")
	assert.True(t, tracker.IsErrorCode(err, tracker.ErrCodeNotFound))

	next, ok := a.Scheduler.Next("main")
	assert.True(t, ok)
	assert.True(t, next.IsZero(), "scheduler has not been started")
}

func TestBuildRestoresLastSnapshot(t *testing.T) {
	cfg := loadConfig(t, `
[[portfolios]]
id = "main"
market_data_provider = "stooq"
`)

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	tr, err := a.Tracker("main")
	require.NoError(t, err)
	// An empty portfolio refreshes without touching the network.
	snap, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	a.Close()

	a, err = Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	tr, err = a.Tracker("main")
	require.NoError(t, err)
	restored, ok := tr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap.CycleID, restored.CycleID)
}
