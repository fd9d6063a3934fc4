// Package catalog provides HTTP handlers and business logic for managing services
// and their status history.
package catalog

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
	DefaultStatusLogLimit = 50
	MaxStatusLogLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: ErrSlugExists, Status: http.StatusConflict},
}

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the catalog module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services", h.ListServices)
	r.Post("/services", h.CreateService)
	r.Get("/services/{id}", h.GetService)
	r.Get("/services/{id}/status-log", h.GetServiceStatusLog)
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Name           string `json:"name" validate:"required,min=1,max=255"`
	Slug           string `json:"slug" validate:"required,min=1,max=255"`
	Description    string `json:"description"`
	Status         string `json:"status" validate:"omitempty,oneof=operational degraded partial_outage major_outage"`
	CreatedBy      string `json:"created_by"`
}

// StatusLogResponse is a page of a service's status history.
type StatusLogResponse struct {
	Entries []domain.StatusLogEntry `json:"entries"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// CreateService handles POST /services request.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	status := domain.ServiceStatusOperational
	if req.Status != "" {
		parsed, err := domain.ParseServiceStatus(req.Status)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	service, err := h.service.CreateService(r.Context(), CreateServiceInput{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Slug:           req.Slug,
		Description:    req.Description,
		Status:         status,
	}, req.CreatedBy)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// GetService handles GET /services/{id} request.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	service, err := h.service.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// ListServices handles GET /services request.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	var filter ServiceFilter
	if v := r.URL.Query().Get("organization_id"); v != "" {
		filter.OrganizationID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseServiceStatus(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}

	services, err := h.service.ListServices(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// GetServiceStatusLog handles GET /services/{id}/status-log request.
func (h *Handler) GetServiceStatusLog(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, DefaultStatusLogLimit, MaxStatusLogLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := h.service.GetServiceStatusLog(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, StatusLogResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}
