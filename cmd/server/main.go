package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"investtracker/internal/app"
	"investtracker/internal/config"
	"investtracker/internal/logging"
	"investtracker/pkg/tracker"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

type serverFlags struct {
	configPath string
	dataDir    string
	host       string
	port       int
}

func main() {
	var f serverFlags
	flag.StringVar(&f.configPath, "config", "", "Path to tracker.toml (defaults to the data dir, then the working directory)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Directory for the database, logs and config")
	flag.StringVar(&f.host, "host", "", "Host to bind the server to (overrides config)")
	flag.IntVar(&f.port, "port", -1, "Port to run the server on (overrides config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, f, nil); err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		exit(1)
	}
}

// run serves until ctx is canceled. ready, when set, receives the bound
// address once the listener is up.
func run(ctx context.Context, f serverFlags, ready chan<- string) error {
	if f.dataDir != "" {
		config.SetRuntimeDataDir(f.dataDir)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port >= 0 {
		cfg.Server.Port = f.port
	}

	logger, writer, err := logging.NewLogger(filepath.Join(cfg.DataDir, "logs"), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close log writer: %v\n", err)
		}
	}()
	if cfg.Source != "" {
		logger.Info().Str("path", cfg.Source).Msg("config loaded")
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if os.Getenv("TRACKER_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	a.Scheduler.Start()
	defer a.Scheduler.Stop()
	for _, t := range a.Trackers {
		go func(t *tracker.Tracker) {
			if _, err := t.RequestRefresh(ctx); err != nil {
				logger.Warn().Err(err).Str("portfolio", t.ID()).Msg("initial refresh failed")
			}
		}(t)
	}

	handler := middleware.Compress(5)(a.Router)
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Address(), err)
	}
	logger.Info().Str("addr", ln.Addr().String()).Int("portfolios", len(a.Trackers)).Msg("server starting")
	if ready != nil {
		ready <- ln.Addr().String()
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

func watchParent(logger zerolog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info().Msg("parent process exited; shutting down")
			exit(0)
		}
	}
}
