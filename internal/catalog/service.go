package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/statuslog"
)

// Service implements catalog business logic.
type Service struct {
	repo Repository
	log  statuslog.Log
	now  func() time.Time
}

// NewService creates a new catalog service.
func NewService(repo Repository, log statuslog.Log) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// CreateServiceInput holds data for creating a service.
type CreateServiceInput struct {
	OrganizationID string
	Name           string
	Slug           string
	Description    string
	Status         domain.ServiceStatus
}

// CreateService creates a service and records its creation event in the status log.
func (s *Service) CreateService(ctx context.Context, input CreateServiceInput, createdBy string) (*domain.Service, error) {
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("invalid service status: %d", int(input.Status))
	}

	now := s.now().UTC()
	service := &domain.Service{
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		Slug:           input.Slug,
		Description:    input.Description,
		Status:         input.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	reason := "Service created"
	creation := &domain.StatusLogEntry{
		StatusTo:  input.Status,
		ChangedAt: now,
		Reason:    &reason,
	}
	if createdBy != "" {
		creation.ChangedBy = &createdBy
	}

	if err := s.repo.CreateService(ctx, service, creation); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return service, nil
}

// GetService retrieves a service by ID.
func (s *Service) GetService(ctx context.Context, id string) (*domain.Service, error) {
	return s.repo.GetServiceByID(ctx, id)
}

// GetServiceBySlug retrieves a service by organization and slug.
func (s *Service) GetServiceBySlug(ctx context.Context, organizationID, slug string) (*domain.Service, error) {
	return s.repo.GetServiceBySlug(ctx, organizationID, slug)
}

// ListServices retrieves services matching the filter.
func (s *Service) ListServices(ctx context.Context, filter ServiceFilter) ([]domain.Service, error) {
	return s.repo.ListServices(ctx, filter)
}

// ListOrganizationServices retrieves all services of an organization.
func (s *Service) ListOrganizationServices(ctx context.Context, organizationID string) ([]domain.Service, error) {
	return s.repo.ListServices(ctx, ServiceFilter{OrganizationID: &organizationID})
}

// ApplyTransition applies a status transition atomically with its log entry.
func (s *Service) ApplyTransition(ctx context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error {
	if err := statuslog.Validate(entry); err != nil {
		return err
	}
	return s.repo.ApplyStatusTransition(ctx, expected, entry)
}

// GetServiceStatusLog returns a page of the service's status history, newest first,
// together with the total number of entries.
func (s *Service) GetServiceStatusLog(ctx context.Context, serviceID string, limit, offset int) ([]domain.StatusLogEntry, int, error) {
	if _, err := s.repo.GetServiceByID(ctx, serviceID); err != nil {
		return nil, 0, err
	}

	entries, err := s.log.List(ctx, serviceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list status log: %w", err)
	}

	total, err := s.log.Count(ctx, serviceID)
	if err != nil {
		return nil, 0, fmt.Errorf("count status log: %w", err)
	}

	return entries, total, nil
}
