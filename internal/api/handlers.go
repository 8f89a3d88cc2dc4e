package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"investtracker/pkg/tracker"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listPortfolios(w http.ResponseWriter, r *http.Request) {
	out := make([]portfolioSummary, 0, len(h.order))
	for _, id := range h.order {
		t := h.trackers[id]
		cfg := t.Config()
		summary := portfolioSummary{
			ID:                    cfg.ID,
			Name:                  cfg.Name,
			BaseCurrency:          cfg.BaseCurrency,
			Provider:              string(cfg.Provider),
			UpdateIntervalSeconds: int(cfg.Interval().Seconds()),
			ImportDir:             cfg.ImportDir,
		}
		if snap, ok := t.Snapshot(); ok {
			computed := snap.ComputedAt
			summary.ComputedAt = &computed
			summary.Stale = snap.Stale
			summary.LastError = snap.LastError
		}
		if h.scheduler != nil {
			if next, ok := h.scheduler.Next(id); ok && !next.IsZero() {
				summary.NextRefresh = &next
			}
		}
		out = append(out, summary)
	}
	writeSuccess(w, out)
}

func (h *handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := trackerFrom(r).Snapshot()
	if !ok {
		writeErrorResponse(w, r, tracker.NewError(tracker.ErrCodeNotFound, "no snapshot computed yet"))
		return
	}
	writeSuccess(w, snap)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := trackerFrom(r).RequestRefresh(r.Context())
	if err != nil {
		writeRefreshError(w, r, snap, err)
		return
	}
	writeSuccess(w, snap)
}

func (h *handler) refreshAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	broker := r.URL.Query().Get("broker")
	snap, err := trackerFrom(r).RefreshAsset(r.Context(), symbol, broker)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, snap)
}

func (h *handler) getWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := trackerFrom(r).Warnings(r.Context())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, warnings)
}

func (h *handler) remap(w http.ResponseWriter, r *http.Request) {
	var payload remapPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	res, err := trackerFrom(r).RemapSymbol(r.Context(), tracker.RemapRequest{
		Symbol:   payload.Symbol,
		Broker:   payload.Broker,
		Ticker:   payload.Ticker,
		Category: payload.Category,
		Manual:   payload.Manual,
	})
	if err != nil {
		writeErrorResponseWithData(w, r, err, res)
		return
	}
	if !res.Changed {
		writeSuccessWithMessage(w, "nothing changed", res)
		return
	}
	writeSuccess(w, res)
}

func (h *handler) importDir(w http.ResponseWriter, r *http.Request) {
	res, err := trackerFrom(r).Import(r.Context())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, res)
}

func (h *handler) addPositions(w http.ResponseWriter, r *http.Request) {
	var payload addPositionsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if len(payload.Positions) == 0 {
		writeErrorResponse(w, r, tracker.NewError(tracker.ErrCodeInvalidInput, "positions are required"))
		return
	}
	positions := make([]tracker.Position, 0, len(payload.Positions))
	for _, p := range payload.Positions {
		positions = append(positions, p.toPosition())
	}
	if err := trackerFrom(r).AddPositions(r.Context(), positions); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, map[string]int{"stored": len(positions)})
}

func (h *handler) getTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := trackerFrom(r).Transactions(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if txs == nil {
		txs = []tracker.Transaction{}
	}
	writeSuccess(w, txs)
}

func (h *handler) addTransactions(w http.ResponseWriter, r *http.Request) {
	var payload addTransactionsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if len(payload.Transactions) == 0 {
		writeErrorResponse(w, r, tracker.NewError(tracker.ErrCodeInvalidInput, "transactions are required"))
		return
	}
	txs := make([]tracker.Transaction, 0, len(payload.Transactions))
	for _, p := range payload.Transactions {
		txs = append(txs, p.toTransaction())
	}
	added, err := trackerFrom(r).AddTransactions(r.Context(), txs)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, map[string]int{"added": added, "duplicates": len(txs) - added})
}

func (h *handler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	var payload deleteHistoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	cutoff, err := parseCutoff(payload.Before)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	deleted, err := trackerFrom(r).DeleteHistory(r.Context(), cutoff)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, map[string]int64{"deleted": deleted})
}

// writeRefreshError keeps the stale snapshot in the body when one exists.
func writeRefreshError(w http.ResponseWriter, r *http.Request, snap tracker.Snapshot, err error) {
	if snap.ComputedAt.IsZero() {
		writeErrorResponse(w, r, err)
		return
	}
	writeErrorResponseWithData(w, r, err, snap)
}

// Helpers.

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return tracker.WrapError(tracker.ErrCodeInvalidInput, "decode request body", err)
	}
	return nil
}

// parseCutoff accepts RFC 3339 timestamps and plain dates (UTC midnight).
func parseCutoff(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, tracker.NewError(tracker.ErrCodeInvalidInput, "before is required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, tracker.NewError(tracker.ErrCodeInvalidInput, "before must be a date or RFC 3339 timestamp")
}
