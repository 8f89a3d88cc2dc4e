package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/pkg/tracker"
)

func isolate(t *testing.T) string {
	t.Helper()
	SetRuntimeDataDir("")
	t.Cleanup(func() { SetRuntimeDataDir("") })
	dir := t.TempDir()
	t.Setenv("TRACKER_DATA_DIR", dir)
	t.Setenv("TRACKER_DB_PATH", "")
	t.Setenv("TRACKER_HOST", "")
	t.Setenv("TRACKER_PORT", "")
	t.Setenv("TRACKER_LOG_LEVEL", "")
	t.Setenv("TRACKER_LOG_FORMAT", "")
	t.Setenv("TRACKER_ALPHAVANTAGE_KEY", "")
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRuntimeDataDirAndEnv(t *testing.T) {
	isolate(t)

	tmp := t.TempDir()
	SetRuntimeDataDir(tmp)
	dir, err := GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, tmp, dir)

	SetRuntimeDataDir("")
	envDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("TRACKER_DATA_DIR", envDir)
	dir, err = GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, envDir, dir)
	assert.DirExists(t, envDir)
}

func TestGetDBPath(t *testing.T) {
	dataDir := isolate(t)

	got, err := GetDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, DefaultDBName), got)

	path := filepath.Join(t.TempDir(), "db.sqlite")
	t.Setenv("TRACKER_DB_PATH", path)
	got, err = GetDBPath()
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestIsMacOSWindows(t *testing.T) {
	assert.Equal(t, runtime.GOOS == "darwin", IsMacOS())
	assert.Equal(t, runtime.GOOS == "windows", IsWindows())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dataDir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, DefaultDBName), cfg.DBPath)
	require.Len(t, cfg.Portfolios, 1)
	assert.Equal(t, "default", cfg.Portfolios[0].ID)
	assert.Equal(t, "127.0.0.1:8000", cfg.Address())
}

func TestLoadFromDataDir(t *testing.T) {
	dataDir := isolate(t)
	writeConfig(t, dataDir, `
[server]
host = "0.0.0.0"
port = 9100

[http]
timeout = "5s"
fail_threshold = 4
cooldown = "3m"

[[portfolios]]
id = "main"
name = "Main"
base_currency = "usd"
market_data_provider = "alpha_vantage"
api_key = "demo"
update_interval = 60
import_dir = "/tmp/imports"
default_broker = "degiro"

[[portfolios]]
id = "crypto"
market_data_provider = "stooq"
update_interval = 3600
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, FileName), cfg.Source)
	assert.Equal(t, "0.0.0.0:9100", cfg.Address())
	assert.Equal(t, 5*time.Second, cfg.HTTP.TimeoutDuration())
	assert.Equal(t, 4, cfg.HTTP.FailThreshold)
	assert.Equal(t, 3*time.Minute, cfg.HTTP.CooldownDuration())
	assert.Equal(t, 60*time.Second, cfg.HTTP.FailWindowDuration())
	assert.Equal(t, 30*time.Second, cfg.HTTP.QuoteCacheTTLDuration())

	require.Len(t, cfg.Portfolios, 2)
	main := cfg.Portfolios[0]
	assert.Equal(t, "USD", main.BaseCurrency)
	assert.Equal(t, 900, main.UpdateInterval, "interval is floored to 15 minutes")

	tc := main.Tracker()
	assert.Equal(t, tracker.ProviderAlphaVantage, tc.Provider)
	assert.Equal(t, 15*time.Minute, tc.UpdateInterval)
	assert.Equal(t, "degiro", tc.DefaultBroker)

	crypto, ok := cfg.Portfolio("crypto")
	require.True(t, ok)
	assert.Equal(t, "EUR", crypto.BaseCurrency)
	assert.Equal(t, "crypto", crypto.Name)
	assert.Equal(t, 3600, crypto.UpdateInterval)

	_, ok = cfg.Portfolio("missing")
	assert.False(t, ok)
}

func TestLoadExplicitPathAndEnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), `
[[portfolios]]
id = "av"
market_data_provider = "alpha_vantage"
`)
	t.Setenv("TRACKER_PORT", "9300")
	t.Setenv("TRACKER_LOG_LEVEL", "debug")
	t.Setenv("TRACKER_ALPHAVANTAGE_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secret", cfg.Portfolios[0].APIKey)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown provider": `
[[portfolios]]
id = "p"
market_data_provider = "bloomberg"
`,
		"unknown currency": `
[[portfolios]]
id = "p"
base_currency = "XYZ"
`,
		"duplicate id": `
[[portfolios]]
id = "p"
[[portfolios]]
id = "p"
`,
		"missing id": `
[[portfolios]]
name = "nameless"
`,
		"bad toml": `[[portfolios]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dataDir := isolate(t)
			writeConfig(t, dataDir, body)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
	assert.Equal(t, time.Second, parseDuration("-5s", time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration(" 2m ", time.Second))
}
