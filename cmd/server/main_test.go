package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investtracker/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"TRACKER_DB_PATH", "TRACKER_HOST", "TRACKER_PORT", "TRACKER_LOG_LEVEL", "TRACKER_LOG_FORMAT", "TRACKER_ALPHAVANTAGE_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("TRACKER_DATA_DIR", dir)
	t.Cleanup(func() { config.SetRuntimeDataDir("") })
	return dir
}

func writeTestConfig(t *testing.T, dir string) {
	t.Helper()
	body := `
[logging]
level = "error"

[[portfolios]]
id = "main"
market_data_provider = "stooq"
base_currency = "USD"

[[portfolios]]
id = "av"
market_data_provider = "alpha_vantage"
api_key = "demo"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0o644))
}

func TestWatchParentExits(t *testing.T) {
	origGetppid := getppid
	origSleep := sleep
	origExit := exit
	defer func() {
		getppid = origGetppid
		sleep = origSleep
		exit = origExit
	}()

	getppid = func() int { return 1 }
	sleep = func(time.Duration) {}

	done := make(chan struct{})
	exit = func(code int) {
		close(done)
		runtime.Goexit()
	}

	go watchParent(zerolog.Nop())

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("watchParent did not exit")
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	dir := isolateEnv(t)
	writeTestConfig(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, serverFlags{dataDir: dir, host: "127.0.0.1", port: 0}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/api/portfolios")
	require.NoError(t, err)
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestRunRejectsBadConfig(t *testing.T) {
	dir := isolateEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("[[portfolios]]\nid = \"x\"\nmarket_data_provider = \"nope\"\n"), 0o644))

	err := run(context.Background(), serverFlags{dataDir: dir, port: -1}, nil)
	assert.Error(t, err)
}
