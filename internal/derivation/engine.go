// Package derivation computes the live status of services from the incidents
// affecting them and records every change in the status log.
//
// Two policies apply. Incident creation may only make a service look worse
// (monotonic worsening). Resolution and updates recompute the status from all
// active incidents and may move it in either direction.
package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
)

// ErrTooManyConflicts is returned when a service's status keeps changing
// underneath the engine for every retry attempt.
var ErrTooManyConflicts = errors.New("status transition retries exhausted")

// ServiceStore reads services and applies status transitions.
type ServiceStore interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
	// ApplyTransition writes the live status and the log entry atomically,
	// failing with catalog.ErrStatusConflict if the status is no longer expected.
	ApplyTransition(ctx context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error
}

// IncidentReader lists incidents that still affect a service.
type IncidentReader interface {
	ListActiveIncidentsForService(ctx context.Context, serviceID string) ([]domain.Incident, error)
}

// Publisher receives applied status changes. Implementations must not block
// on delivery.
type Publisher interface {
	Publish(ctx context.Context, change domain.StatusChange)
}

// Config contains engine configuration.
type Config struct {
	MaxAttempts int
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3}
}

// Cause describes what triggered a status change. It ends up in the log entry.
type Cause struct {
	IncidentID *string
	Actor      string
	Reason     string
}

// Transition is a status change the engine applied.
type Transition struct {
	ServiceID  string               `json:"service_id"`
	From       domain.ServiceStatus `json:"from"`
	To         domain.ServiceStatus `json:"to"`
	ChangedAt  time.Time            `json:"changed_at"`
	IncidentID *string              `json:"incident_id,omitempty"`
}

// Engine derives service statuses.
type Engine struct {
	services  ServiceStore
	incidents IncidentReader
	publisher Publisher
	config    Config
	locks     *keyedMutex
	now       func() time.Time
}

// NewEngine creates a new derivation engine. A nil publisher discards changes.
func NewEngine(services ServiceStore, incidents IncidentReader, publisher Publisher, config Config) *Engine {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Engine{
		services:  services,
		incidents: incidents,
		publisher: publisher,
		config:    config,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// OnIncidentCreated raises the status of every affected service whose current
// status is better than the incident's severity implies. It never lowers a status.
func (e *Engine) OnIncidentCreated(ctx context.Context, incident *domain.Incident) ([]Transition, error) {
	if !incident.IsActive() {
		return nil, nil
	}

	candidate := domain.SeverityToStatus(incident.Severity)
	cause := Cause{
		IncidentID: &incident.ID,
		Actor:      incident.CreatedBy,
		Reason:     fmt.Sprintf("Incident created: %s", incident.Title),
	}

	var transitions []Transition
	var errs []error
	for _, serviceID := range incident.ServiceIDs {
		t, err := e.apply(ctx, serviceID, cause, func(context.Context, string) (domain.ServiceStatus, error) {
			return candidate, nil
		}, func(current, target domain.ServiceStatus) bool {
			return target.IsWorseThan(current)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", serviceID, err))
			continue
		}
		if t != nil {
			transitions = append(transitions, *t)
		}
	}

	return transitions, errors.Join(errs...)
}

// RecomputeStatus sets the service's status to what its active incidents
// imply: operational when there are none, otherwise the status of the worst
// severity. It is idempotent; nothing is written when the status is already right.
func (e *Engine) RecomputeStatus(ctx context.Context, serviceID string, cause Cause) (*Transition, error) {
	return e.apply(ctx, serviceID, cause, e.targetStatus, func(current, target domain.ServiceStatus) bool {
		return target != current
	})
}

// OnIncidentResolved recomputes every service the incident affected.
func (e *Engine) OnIncidentResolved(ctx context.Context, incident *domain.Incident) ([]Transition, error) {
	return e.recomputeAll(ctx, incident.ServiceIDs, Cause{
		IncidentID: &incident.ID,
		Reason:     fmt.Sprintf("Incident resolved: %s", incident.Title),
	})
}

// OnIncidentUpdated recomputes every affected service. serviceIDs should
// include services removed from the incident so they can recover.
func (e *Engine) OnIncidentUpdated(ctx context.Context, incident *domain.Incident, serviceIDs []string, changedFields []string) ([]Transition, error) {
	if len(serviceIDs) == 0 {
		serviceIDs = incident.ServiceIDs
	}
	reason := fmt.Sprintf("Incident updated: %s", incident.Title)
	if len(changedFields) > 0 {
		reason = fmt.Sprintf("%s (%v)", reason, changedFields)
	}
	return e.recomputeAll(ctx, serviceIDs, Cause{
		IncidentID: &incident.ID,
		Reason:     reason,
	})
}

func (e *Engine) recomputeAll(ctx context.Context, serviceIDs []string, cause Cause) ([]Transition, error) {
	var transitions []Transition
	var errs []error
	for _, serviceID := range serviceIDs {
		t, err := e.RecomputeStatus(ctx, serviceID, cause)
		if err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", serviceID, err))
			continue
		}
		if t != nil {
			transitions = append(transitions, *t)
		}
	}
	return transitions, errors.Join(errs...)
}

func (e *Engine) targetStatus(ctx context.Context, serviceID string) (domain.ServiceStatus, error) {
	active, err := e.incidents.ListActiveIncidentsForService(ctx, serviceID)
	if err != nil {
		return 0, fmt.Errorf("list active incidents: %w", err)
	}
	if len(active) == 0 {
		return domain.ServiceStatusOperational, nil
	}
	return domain.SeverityToStatus(domain.MaxSeverity(active)), nil
}

type targetFunc func(ctx context.Context, serviceID string) (domain.ServiceStatus, error)

// apply runs read-compare-write for one service under its lock. The write is
// a compare-and-set; when another writer wins, the service is re-read and the
// decision made again.
func (e *Engine) apply(
	ctx context.Context,
	serviceID string,
	cause Cause,
	target targetFunc,
	shouldChange func(current, target domain.ServiceStatus) bool,
) (*Transition, error) {
	unlock := e.locks.Lock(serviceID)
	defer unlock()

	logger := ctxlog.FromContext(ctx).With("service_id", serviceID)

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		service, err := e.services.GetService(ctx, serviceID)
		if err != nil {
			return nil, fmt.Errorf("get service: %w", err)
		}

		desired, err := target(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		if !shouldChange(service.Status, desired) {
			return nil, nil
		}

		entry := &domain.StatusLogEntry{
			ServiceID:  serviceID,
			StatusFrom: domain.StatusPtr(service.Status),
			StatusTo:   desired,
			ChangedAt:  e.now().UTC(),
			IncidentID: cause.IncidentID,
		}
		if cause.Actor != "" {
			actor := cause.Actor
			entry.ChangedBy = &actor
		}
		if cause.Reason != "" {
			reason := cause.Reason
			entry.Reason = &reason
		}

		err = e.services.ApplyTransition(ctx, service.Status, entry)
		if errors.Is(err, catalog.ErrStatusConflict) {
			metrics.StatusConflicts.Inc()
			logger.Warn("service status changed concurrently, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("apply transition: %w", err)
		}

		metrics.RecordStatusTransition(service.Status.String(), desired.String())
		logger.Info("service status changed",
			"from", service.Status.String(),
			"to", desired.String(),
			"reason", cause.Reason,
		)

		e.publisher.Publish(ctx, domain.StatusChange{
			ServiceID:      serviceID,
			OrganizationID: service.OrganizationID,
			ServiceName:    service.Name,
			From:           service.Status,
			To:             desired,
			ChangedAt:      entry.ChangedAt,
			IncidentID:     cause.IncidentID,
		})

		return &Transition{
			ServiceID:  serviceID,
			From:       service.Status,
			To:         desired,
			ChangedAt:  entry.ChangedAt,
			IncidentID: cause.IncidentID,
		}, nil
	}

	return nil, ErrTooManyConflicts
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.StatusChange) {}
