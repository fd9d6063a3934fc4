package aggregate

import (
	"net/http"

	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for organization-wide operations.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler creates a new aggregate handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// RegisterRoutes registers organization routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/organizations/{id}", func(r chi.Router) {
		r.Get("/uptime", h.GetOrganizationUptime)
		r.Post("/recalculate", h.Recalculate)
	})
}

// GetOrganizationUptime handles GET /organizations/{id}/uptime?period= request.
func (h *Handler) GetOrganizationUptime(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = uptime.DefaultPeriod
	}
	if !uptime.IsValidPeriod(period) {
		httputil.Error(w, http.StatusBadRequest, "period must be one of 24h, 7d, 30d, 90d")
		return
	}

	result, err := h.aggregator.OrganizationUptime(r.Context(), chi.URLParam(r, "id"), period)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Recalculate handles POST /organizations/{id}/recalculate request.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	report, err := h.aggregator.RecalculateAllServicesStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, report)
}
