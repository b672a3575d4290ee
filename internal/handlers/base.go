package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/autopilot-ops/extraction-store/internal/extraction"
)

// OpsHandler serves the operational surface: the metrics dashboard, ledger
// queries, cache stats and the admin triggers. The upload front-end lives in
// a different service and calls the extraction.Service API directly.
type OpsHandler struct {
	svc *extraction.Service
	log *logrus.Entry
}

func NewOpsHandler(logger *logrus.Logger, svc *extraction.Service) *OpsHandler {
	return &OpsHandler{
		svc: svc,
		log: logger.WithField("component", "ops_handler"),
	}
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
