package catalog

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the interface for catalog data operations.
type Repository interface {
	// CreateService stores a service together with its creation log entry.
	CreateService(ctx context.Context, service *domain.Service, creation *domain.StatusLogEntry) error
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	GetServiceBySlug(ctx context.Context, organizationID, slug string) (*domain.Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]domain.Service, error)

	// ApplyStatusTransition sets the live status of entry.ServiceID to
	// entry.StatusTo and appends entry to the status log, atomically.
	// It returns ErrStatusConflict if the live status is no longer expected.
	ApplyStatusTransition(ctx context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error
}

// ServiceFilter represents filter criteria for listing services.
type ServiceFilter struct {
	OrganizationID *string
	Status         *domain.ServiceStatus
}
