package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/autopilot-ops/extraction-store/internal/store"
)

const dateLayout = "2006-01-02"

// HandleDashboard serves the daily rollup, most recent day first. Defaults to
// the last 30 days.
func (h *OpsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -30), now

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date"})
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date"})
			return
		}
	}

	rows, err := h.svc.Dashboard(r.Context(), from, to)
	if err != nil {
		h.log.WithError(err).Error("Dashboard read failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleSessions lists ledger rows, ordered by created_at ascending.
func (h *OpsHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{
		ContentHash: q.Get("content_hash"),
		Limit:       100,
	}

	if v := q.Get("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid success flag"})
			return
		}
		filter.Success = &success
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since timestamp"})
			return
		}
		filter.From = since
	}
	if v := q.Get("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid until timestamp"})
			return
		}
		filter.To = until
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be within [1,1000]"})
			return
		}
		filter.Limit = limit
	}

	rows, err := h.svc.Sessions(r.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Session query failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *OpsHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.CacheStats(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Cache stats failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
