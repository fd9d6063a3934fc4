// Package memory provides a thread-safe in-memory implementation of the
// catalog, incident and status log repositories.
//
// All state lives behind a single lock so that a status transition and its
// log entry are applied as one unit, like a database transaction would.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	"github.com/bissquit/uptime-garden/internal/statuslog"
	"github.com/google/uuid"
)

// Store holds services, incidents and status logs in memory.
type Store struct {
	mu        sync.RWMutex
	services  map[string]*domain.Service
	incidents map[string]*domain.Incident
	logs      map[string][]domain.StatusLogEntry // per service, in replay order
	seq       int64
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		services:  make(map[string]*domain.Service),
		incidents: make(map[string]*domain.Incident),
		logs:      make(map[string][]domain.StatusLogEntry),
		now:       time.Now,
	}
}

var (
	_ catalog.Repository   = (*Store)(nil)
	_ incidents.Repository = (*Store)(nil)
	_ statuslog.Log        = (*Store)(nil)
)

// CreateService stores a service together with its creation log entry.
func (s *Store) CreateService(_ context.Context, service *domain.Service, creation *domain.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.services {
		if existing.OrganizationID == service.OrganizationID && existing.Slug == service.Slug {
			return catalog.ErrSlugExists
		}
	}

	if service.ID == "" {
		service.ID = uuid.New().String()
	}
	if service.CreatedAt.IsZero() {
		service.CreatedAt = s.now().UTC()
	}
	service.UpdatedAt = service.CreatedAt

	if creation != nil {
		creation.ServiceID = service.ID
		creation.StatusFrom = nil
		creation.StatusTo = service.Status
		if err := s.appendLocked(creation); err != nil {
			return err
		}
	}

	stored := *service
	s.services[service.ID] = &stored
	return nil
}

// GetServiceByID retrieves a service by its ID.
func (s *Store) GetServiceByID(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}
	out := *svc
	return &out, nil
}

// GetServiceBySlug retrieves a service by organization and slug.
func (s *Store) GetServiceBySlug(_ context.Context, organizationID, slug string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, svc := range s.services {
		if svc.OrganizationID == organizationID && svc.Slug == slug {
			out := *svc
			return &out, nil
		}
	}
	return nil, catalog.ErrServiceNotFound
}

// ListServices returns services matching the filter ordered by name.
func (s *Store) ListServices(_ context.Context, filter catalog.ServiceFilter) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if filter.OrganizationID != nil && svc.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != nil && svc.Status != *filter.Status {
			continue
		}
		result = append(result, *svc)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// ApplyStatusTransition updates the live status and appends the log entry atomically.
func (s *Store) ApplyStatusTransition(_ context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[entry.ServiceID]
	if !ok {
		return catalog.ErrServiceNotFound
	}
	if svc.Status != expected {
		return catalog.ErrStatusConflict
	}

	if err := s.appendLocked(entry); err != nil {
		return err
	}

	svc.Status = entry.StatusTo
	svc.UpdatedAt = entry.ChangedAt
	return nil
}

// Append inserts a status log entry. The service's live status is not touched.
func (s *Store) Append(_ context.Context, entry *domain.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(entry)
}

func (s *Store) appendLocked(entry *domain.StatusLogEntry) error {
	if err := statuslog.Validate(entry); err != nil {
		return err
	}

	s.seq++
	entry.Seq = s.seq
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	stored := cloneEntry(*entry)
	entries := s.logs[entry.ServiceID]
	// Keep replay order; an entry with an equal timestamp goes after existing ones.
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].ChangedAt.After(stored.ChangedAt)
	})
	entries = append(entries, domain.StatusLogEntry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = stored
	s.logs[entry.ServiceID] = entries
	return nil
}

// EntriesInRange returns entries with ChangedAt in [start, end) in replay order.
func (s *Store) EntriesInRange(_ context.Context, serviceID string, start, end time.Time) ([]domain.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StatusLogEntry, 0)
	for _, e := range s.logs[serviceID] {
		if e.ChangedAt.Before(start) {
			continue
		}
		if !e.ChangedAt.Before(end) {
			break
		}
		result = append(result, cloneEntry(e))
	}
	return result, nil
}

// LastEntryBefore returns the latest entry with ChangedAt < instant, or nil.
func (s *Store) LastEntryBefore(_ context.Context, serviceID string, instant time.Time) (*domain.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[serviceID]
	idx := sort.Search(len(entries), func(i int) bool {
		return !entries[i].ChangedAt.Before(instant)
	})
	if idx == 0 {
		return nil, nil
	}
	e := cloneEntry(entries[idx-1])
	return &e, nil
}

// List returns entries newest first.
func (s *Store) List(_ context.Context, serviceID string, limit, offset int) ([]domain.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[serviceID]
	result := make([]domain.StatusLogEntry, 0, limit)
	for i := len(entries) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneEntry(entries[i]))
	}
	return result, nil
}

// Count returns the number of log entries of a service.
func (s *Store) Count(_ context.Context, serviceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[serviceID]), nil
}

// CreateIncident stores a new incident.
func (s *Store) CreateIncident(_ context.Context, incident *domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAffectedLocked(incident); err != nil {
		return err
	}

	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	incident.UpdatedAt = incident.CreatedAt

	stored := cloneIncident(*incident)
	s.incidents[incident.ID] = &stored
	return nil
}

// GetIncident retrieves an incident by ID.
func (s *Store) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	out := cloneIncident(*inc)
	return &out, nil
}

// UpdateIncident replaces a stored incident.
func (s *Store) UpdateIncident(_ context.Context, incident *domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[incident.ID]; !ok {
		return incidents.ErrIncidentNotFound
	}
	if err := s.checkAffectedLocked(incident); err != nil {
		return err
	}

	incident.UpdatedAt = s.now().UTC()
	stored := cloneIncident(*incident)
	s.incidents[incident.ID] = &stored
	return nil
}

// checkAffectedLocked requires every affected service to exist in the
// incident's organization.
func (s *Store) checkAffectedLocked(incident *domain.Incident) error {
	for _, sid := range incident.ServiceIDs {
		svc, ok := s.services[sid]
		if !ok || svc.OrganizationID != incident.OrganizationID {
			return fmt.Errorf("%w: %s", incidents.ErrAffectedServiceNotFound, sid)
		}
	}
	return nil
}

// ListIncidents returns incidents matching the filter, newest first.
func (s *Store) ListIncidents(_ context.Context, filter incidents.IncidentFilter) ([]domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Incident, 0)
	for _, inc := range s.incidents {
		if filter.OrganizationID != nil && inc.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.ServiceID != nil && !containsString(inc.ServiceIDs, *filter.ServiceID) {
			continue
		}
		if filter.ActiveOnly && !inc.IsActive() {
			continue
		}
		result = append(result, cloneIncident(*inc))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Incident{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListActiveIncidentsForService returns unresolved incidents affecting the service.
func (s *Store) ListActiveIncidentsForService(ctx context.Context, serviceID string) ([]domain.Incident, error) {
	return s.ListIncidents(ctx, incidents.IncidentFilter{ServiceID: &serviceID, ActiveOnly: true})
}

func cloneEntry(e domain.StatusLogEntry) domain.StatusLogEntry {
	if e.StatusFrom != nil {
		from := *e.StatusFrom
		e.StatusFrom = &from
	}
	if e.ChangedBy != nil {
		by := *e.ChangedBy
		e.ChangedBy = &by
	}
	if e.Reason != nil {
		reason := *e.Reason
		e.Reason = &reason
	}
	if e.IncidentID != nil {
		id := *e.IncidentID
		e.IncidentID = &id
	}
	return e
}

func cloneIncident(inc domain.Incident) domain.Incident {
	inc.ServiceIDs = append([]string(nil), inc.ServiceIDs...)
	if inc.ResolvedAt != nil {
		resolved := *inc.ResolvedAt
		inc.ResolvedAt = &resolved
	}
	return inc
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
