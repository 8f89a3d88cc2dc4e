package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"investtracker/pkg/tracker"
)

// Options wires the router to the running portfolios.
type Options struct {
	Trackers  []*tracker.Tracker
	Scheduler *tracker.Scheduler
	Store     *tracker.Store
	DataDir   string
	Logger    zerolog.Logger
}

// NewRouter builds the HTTP API router.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		trackers:  make(map[string]*tracker.Tracker, len(opts.Trackers)),
		scheduler: opts.Scheduler,
		store:     opts.Store,
		dataDir:   opts.DataDir,
		logger:    opts.Logger,
	}
	for _, t := range opts.Trackers {
		h.trackers[t.ID()] = t
		h.order = append(h.order, t.ID())
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(opts.Logger))
	r.Use(recoveryLoggingMiddleware(opts.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", h.health)
	r.Get("/api/storage", h.getStorageInfo)
	r.Get("/api/portfolios", h.listPortfolios)

	r.Route("/api/portfolios/{id}", func(r chi.Router) {
		r.Use(h.portfolioCtx)

		// Valuation
		r.Get("/snapshot", h.getSnapshot)
		r.Post("/refresh", h.refresh)
		r.Post("/assets/{symbol}/refresh", h.refreshAsset)

		// Repair
		r.Get("/warnings", h.getWarnings)
		r.Post("/remap", h.remap)

		// Records
		r.Post("/import", h.importDir)
		r.Post("/positions", h.addPositions)
		r.Get("/transactions", h.getTransactions)
		r.Post("/transactions", h.addTransactions)

		// Housekeeping
		r.Post("/history/delete", h.deleteHistory)
	})

	return r
}

type handler struct {
	trackers  map[string]*tracker.Tracker
	order     []string
	scheduler *tracker.Scheduler
	store     *tracker.Store
	dataDir   string
	logger    zerolog.Logger
}

type trackerKey struct{}

// portfolioCtx resolves {id} to its tracker or answers 404.
func (h *handler) portfolioCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		t, ok := h.trackers[id]
		if !ok {
			writeErrorResponse(w, r, tracker.NewError(tracker.ErrCodeNotFound, "portfolio "+id+" not found"))
			return
		}
		ctx := context.WithValue(r.Context(), trackerKey{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func trackerFrom(r *http.Request) *tracker.Tracker {
	t, _ := r.Context().Value(trackerKey{}).(*tracker.Tracker)
	return t
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

