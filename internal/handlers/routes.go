package handlers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *mux.Router, h *OpsHandler) {
	r.HandleFunc("/healthz", HandleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/metrics/dashboard", h.HandleDashboard).Methods("GET")
	api.HandleFunc("/sessions", h.HandleSessions).Methods("GET")
	api.HandleFunc("/cache/stats", h.HandleCacheStats).Methods("GET")
	api.HandleFunc("/admin/retention/run", h.HandleRunRetention).Methods("POST")
	api.HandleFunc("/admin/metrics/rebuild", h.HandleRebuildMetrics).Methods("POST")
}
