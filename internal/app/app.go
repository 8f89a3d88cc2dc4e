// Package app wires configuration, storage, market data clients and one
// tracker per portfolio. The daemon and the CLI share it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"investtracker/internal/api"
	"investtracker/internal/config"
	"investtracker/pkg/marketdata"
	"investtracker/pkg/tracker"
)

type App struct {
	Store     *tracker.Store
	Trackers  []*tracker.Tracker
	Scheduler *tracker.Scheduler
	Router    http.Handler
	logger    zerolog.Logger
}

// Build opens the store and wires one tracker per configured portfolio. The
// Yahoo and Stooq clients are shared; Alpha Vantage clients carry the key of
// their portfolio. Every tracker is registered with the (stopped) scheduler.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	store, err := tracker.OpenStoreWithOptions(tracker.StoreOptions{DBPath: cfg.DBPath, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	timeout := cfg.HTTP.TimeoutDuration()
	yahoo := marketdata.NewYahoo(
		marketdata.WithTimeout(timeout),
		marketdata.WithLogger(logger.With().Str("provider", "yahoo").Logger()),
	)
	stooq := marketdata.NewStooq(
		marketdata.WithTimeout(timeout),
		marketdata.WithLogger(logger.With().Str("provider", "stooq").Logger()),
	)
	resolver := tracker.NewResolver(tracker.ResolverOptions{
		Searcher: yahoo,
		Logger:   logger.With().Str("component", "resolver").Logger(),
	})
	enricher := tracker.NewEnricher(yahoo, logger.With().Str("component", "enricher").Logger())

	a := &App{Store: store, Scheduler: tracker.NewScheduler(logger), logger: logger}
	for _, pc := range cfg.Portfolios {
		plog := logger.With().Str("portfolio", pc.ID).Logger()
		quotes := tracker.NewQuoteAggregator(tracker.QuoteAggregatorOptions{
			Logger: plog,
			Chart:  yahoo,
			Suffix: stooq,
			Keyed: marketdata.NewAlphaVantage(pc.APIKey,
				marketdata.WithTimeout(timeout),
				marketdata.WithLogger(plog.With().Str("provider", "alpha_vantage").Logger()),
			),
			LastValues:    store,
			CacheTTL:      cfg.HTTP.QuoteCacheTTLDuration(),
			FailThreshold: cfg.HTTP.FailThreshold,
			FailWindow:    cfg.HTTP.FailWindowDuration(),
			Cooldown:      cfg.HTTP.CooldownDuration(),
		})
		t, err := tracker.NewTracker(ctx, tracker.Options{
			Config:   pc.Tracker(),
			Store:    store,
			Resolver: resolver,
			Quotes:   quotes,
			Enricher: enricher,
			Logger:   plog,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("portfolio %s: %w", pc.ID, err)
		}
		if err := a.Scheduler.Add(t); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("schedule %s: %w", pc.ID, err)
		}
		a.Trackers = append(a.Trackers, t)
	}

	a.Router = api.NewRouter(api.Options{
		Trackers:  a.Trackers,
		Scheduler: a.Scheduler,
		Store:     store,
		DataDir:   cfg.DataDir,
		Logger:    logger.With().Str("component", "http").Logger(),
	})
	return a, nil
}

// Tracker returns the tracker of portfolio id.
func (a *App) Tracker(id string) (*tracker.Tracker, error) {
	for _, t := range a.Trackers {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, tracker.NewError(tracker.ErrCodeNotFound, fmt.Sprintf("portfolio %s not found", id))
}

// Close closes the store.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close store")
	}
}
