package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stemreport/apiserver/internal/services"
)

// DashboardHandler serves the monitoring rollups.
type DashboardHandler struct {
	aggregationService *services.AggregationService
}

func NewDashboardHandler(aggregationService *services.AggregationService) *DashboardHandler {
	return &DashboardHandler{aggregationService: aggregationService}
}

// DashboardRouter registers /dashboard routes.
func DashboardRouter(r chi.Router, handler *DashboardHandler) {
	r.Get("/totals", handler.Totals)
	r.Get("/initiatives", handler.Initiatives)
	r.Get("/regions", handler.Regions)
}

func (h *DashboardHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.aggregationService.Totals(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to compute totals")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *DashboardHandler) Initiatives(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	progress, err := h.aggregationService.Progress(r.Context(), principal)
	if err != nil {
		writeServiceError(w, r, err, "failed to compute progress")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Regions returns the per-Negeri completion table, optionally for one
// reporting period.
func (h *DashboardHandler) Regions(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rows, err := h.aggregationService.Regions(r.Context(), principal, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, err, "failed to compute regions")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
