package api

import (
	"net/http"
	"path/filepath"
)

// getStorageInfo reports where state lives and how many snapshots each
// portfolio keeps.
func (h *handler) getStorageInfo(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "store not configured")
		return
	}
	dbPath := h.store.DBPath()
	dataDir := h.dataDir
	if dataDir == "" {
		dataDir = filepath.Dir(dbPath)
	}

	counts := make(map[string]int, len(h.order))
	for _, id := range h.order {
		n, err := h.store.CountSnapshots(r.Context(), id)
		if err != nil {
			writeErrorResponse(w, r, err)
			return
		}
		counts[id] = n
	}

	writeSuccess(w, storageInfoResponse{
		DataDir:   dataDir,
		DBPath:    dbPath,
		Snapshots: counts,
	})
}
