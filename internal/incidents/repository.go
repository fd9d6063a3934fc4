package incidents

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)

	// ListActiveIncidentsForService returns unresolved incidents that affect the service.
	ListActiveIncidentsForService(ctx context.Context, serviceID string) ([]domain.Incident, error)
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	OrganizationID *string
	ServiceID      *string
	ActiveOnly     bool
	Limit          int
	Offset         int
}
