package handlers

import (
	"net/http"
	"time"
)

// HandleRunRetention triggers one sweep outside the schedule.
func (h *OpsHandler) HandleRunRetention(w http.ResponseWriter, r *http.Request) {
	summary := h.svc.RunRetention(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, summary)
}

// HandleRebuildMetrics replays the ledger for [from, to] into the rollup.
func (h *OpsHandler) HandleRebuildMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date"})
		return
	}
	to, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date"})
		return
	}

	if err := h.svc.RebuildMetrics(r.Context(), from, to); err != nil {
		h.log.WithError(err).Error("Metrics rebuild failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}
