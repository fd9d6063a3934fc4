package domain

import "time"

// Service represents a monitored service.
//
// Status is the live projection of the service's status log: once any history
// exists it always equals the StatusTo of the latest log entry.
type Service struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	Description    string        `json:"description"`
	Status         ServiceStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StatusChange describes an applied change of a service's live status.
// It is what publishers receive.
type StatusChange struct {
	ServiceID      string        `json:"service_id"`
	OrganizationID string        `json:"organization_id,omitempty"`
	ServiceName    string        `json:"service_name,omitempty"`
	From           ServiceStatus `json:"from"`
	To             ServiceStatus `json:"to"`
	ChangedAt      time.Time     `json:"changed_at"`
	IncidentID     *string       `json:"incident_id,omitempty"`
}
