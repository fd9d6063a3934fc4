package uptime

import (
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// DefaultWindow is used when a request gives no start.
const DefaultWindow = 30 * day

var errorMappings = []httputil.ErrorMapping{
	{Error: catalog.ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidWindow, Status: http.StatusBadRequest, Message: "start and end must be RFC3339 timestamps"},
}

// Handler handles HTTP requests for uptime queries.
type Handler struct {
	services ServiceReader
	calc     *Calculator
	charter  *Charter
	now      func() time.Time
}

// NewHandler creates a new uptime handler.
func NewHandler(services ServiceReader, calc *Calculator, charter *Charter) *Handler {
	return &Handler{
		services: services,
		calc:     calc,
		charter:  charter,
		now:      time.Now,
	}
}

// RegisterRoutes registers uptime routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services/{id}/uptime", h.GetUptime)
	r.Get("/services/{id}/uptime/chart", h.GetUptimeChart)
}

// UptimeResponse is the body of GET /services/{id}/uptime.
type UptimeResponse struct {
	ServiceID string    `json:"service_id"`
	Uptime    float64   `json:"uptime"`
	Breakdown Breakdown `json:"breakdown"`
}

// GetUptime handles GET /services/{id}/uptime?start=&end= request.
func (h *Handler) GetUptime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	start, end, err := h.parseWindow(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if _, err := h.services.GetService(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	breakdown, err := h.calc.Breakdown(r.Context(), id, start, end)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, UptimeResponse{
		ServiceID: id,
		Uptime:    breakdown.UptimePercent,
		Breakdown: breakdown,
	})
}

// GetUptimeChart handles GET /services/{id}/uptime/chart?period= request.
func (h *Handler) GetUptimeChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	period := r.URL.Query().Get("period")
	if period == "" {
		period = DefaultPeriod
	}
	if !IsValidPeriod(period) {
		httputil.Error(w, http.StatusBadRequest, "period must be one of 24h, 7d, 30d, 90d")
		return
	}

	if _, err := h.services.GetService(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	points, err := h.charter.GetUptimeChartData(r.Context(), id, period)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"service_id": id,
		"period":     period,
		"points":     points,
	})
}

func (h *Handler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	end := h.now().UTC()
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidWindow
		}
		end = parsed.UTC()
	}

	start := end.Add(-DefaultWindow)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidWindow
		}
		start = parsed.UTC()
	}

	return start, end, nil
}
