package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrAffectedServiceNotFound, Status: http.StatusBadRequest},
	{Error: ErrNoAffectedServices, Status: http.StatusBadRequest},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrIncidentAlreadyResolved, Status: http.StatusConflict},
}

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incident handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}", h.UpdateIncident)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	OrganizationID string   `json:"organization_id" validate:"required"`
	Title          string   `json:"title" validate:"required,min=1,max=500"`
	Severity       string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Status         string   `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	ServiceIDs     []string `json:"service_ids" validate:"required,min=1,dive,required"`
	CreatedBy      string   `json:"created_by"`
}

// UpdateIncidentRequest represents the request body for updating an incident.
type UpdateIncidentRequest struct {
	Title      *string   `json:"title" validate:"omitempty,min=1,max=500"`
	Severity   *string   `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Status     *string   `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	ServiceIDs *[]string `json:"service_ids" validate:"omitempty,min=1"`
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	severity, err := domain.ParseSeverity(req.Severity)
	if err != nil {
		httputil.HandleError(r.Context(), w, ErrInvalidSeverity, errorMappings)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Severity:       severity,
		Status:         domain.IncidentStatus(req.Status),
		ServiceIDs:     req.ServiceIDs,
	}, req.CreatedBy)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, DefaultListLimit, MaxListLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := IncidentFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	if v := r.URL.Query().Get("organization_id"); v != "" {
		filter.OrganizationID = &v
	}
	if v := r.URL.Query().Get("service_id"); v != "" {
		filter.ServiceID = &v
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// UpdateIncident handles PATCH /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateIncidentInput{
		Title:      req.Title,
		ServiceIDs: req.ServiceIDs,
	}
	if req.Severity != nil {
		severity, err := domain.ParseSeverity(*req.Severity)
		if err != nil {
			httputil.HandleError(r.Context(), w, ErrInvalidSeverity, errorMappings)
			return
		}
		input.Severity = &severity
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}

	incident, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}
