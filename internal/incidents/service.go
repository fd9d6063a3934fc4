// Package incidents manages incidents and feeds their lifecycle into status derivation.
package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/derivation"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
)

// StatusDeriver reacts to incident lifecycle events.
type StatusDeriver interface {
	OnIncidentCreated(ctx context.Context, incident *domain.Incident) ([]derivation.Transition, error)
	OnIncidentResolved(ctx context.Context, incident *domain.Incident) ([]derivation.Transition, error)
	OnIncidentUpdated(ctx context.Context, incident *domain.Incident, serviceIDs []string, changedFields []string) ([]derivation.Transition, error)
}

// Service implements incident business logic.
type Service struct {
	repo    Repository
	deriver StatusDeriver
	now     func() time.Time
}

// NewService creates a new incident service.
func NewService(repo Repository, deriver StatusDeriver) *Service {
	return &Service{
		repo:    repo,
		deriver: deriver,
		now:     time.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	OrganizationID string
	Title          string
	Severity       domain.Severity
	Status         domain.IncidentStatus
	ServiceIDs     []string
}

// UpdateIncidentInput holds the fields to change. Nil fields are left as is.
type UpdateIncidentInput struct {
	Title      *string
	Severity   *domain.Severity
	Status     *domain.IncidentStatus
	ServiceIDs *[]string
}

// CreateIncident stores an incident and raises the status of affected services.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput, createdBy string) (*domain.Incident, error) {
	if !input.Severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	if input.Status == "" {
		input.Status = domain.IncidentStatusInvestigating
	}
	if !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	serviceIDs := uniqueIDs(input.ServiceIDs)
	if len(serviceIDs) == 0 {
		return nil, ErrNoAffectedServices
	}

	now := s.now().UTC()
	incident := &domain.Incident{
		OrganizationID: input.OrganizationID,
		Title:          input.Title,
		Severity:       input.Severity,
		Status:         input.Status,
		ServiceIDs:     serviceIDs,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !incident.IsActive() {
		incident.ResolvedAt = &now
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if _, err := s.deriver.OnIncidentCreated(ctx, incident); err != nil {
		ctxlog.FromContext(ctx).Error("failed to derive service status after incident creation",
			"incident_id", incident.ID,
			"error", err,
		)
	}

	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents retrieves incidents matching the filter.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filter)
}

// UpdateIncident applies changes to an active incident and recomputes the
// status of every service it affects or used to affect.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if !incident.IsActive() {
		return nil, ErrIncidentAlreadyResolved
	}

	previousServices := incident.ServiceIDs
	var changed []string

	if input.Title != nil && *input.Title != incident.Title {
		incident.Title = *input.Title
		changed = append(changed, domain.IncidentFieldTitle)
	}
	if input.Severity != nil {
		if !input.Severity.IsValid() {
			return nil, ErrInvalidSeverity
		}
		if *input.Severity != incident.Severity {
			incident.Severity = *input.Severity
			changed = append(changed, domain.IncidentFieldSeverity)
		}
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, ErrInvalidStatus
		}
		if *input.Status != incident.Status {
			incident.Status = *input.Status
			changed = append(changed, domain.IncidentFieldStatus)
		}
	}
	if input.ServiceIDs != nil {
		ids := uniqueIDs(*input.ServiceIDs)
		if len(ids) == 0 {
			return nil, ErrNoAffectedServices
		}
		if !sameIDs(ids, incident.ServiceIDs) {
			incident.ServiceIDs = ids
			changed = append(changed, domain.IncidentFieldServices)
		}
	}

	if len(changed) == 0 {
		return incident, nil
	}

	resolved := !incident.IsActive()
	if resolved {
		now := s.now().UTC()
		incident.ResolvedAt = &now
	}

	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if onlyTitle(changed) {
		return incident, nil
	}

	affected := uniqueIDs(append(append([]string{}, previousServices...), incident.ServiceIDs...))
	if resolved {
		target := *incident
		target.ServiceIDs = affected
		_, err = s.deriver.OnIncidentResolved(ctx, &target)
	} else {
		_, err = s.deriver.OnIncidentUpdated(ctx, incident, affected, changed)
	}
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to derive service status after incident update",
			"incident_id", incident.ID,
			"changed", changed,
			"error", err,
		)
	}

	return incident, nil
}

func onlyTitle(changed []string) bool {
	return len(changed) == 1 && changed[0] == domain.IncidentFieldTitle
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
