package domain

import "time"

// IncidentStatus represents the lifecycle stage of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IsActive reports whether an incident in this status participates in
// status derivation. Only resolved incidents are inactive.
func (s IncidentStatus) IsActive() bool {
	return s != IncidentStatusResolved
}

// Incident represents an incident affecting one or more services.
type Incident struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Title          string         `json:"title"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	ServiceIDs     []string       `json:"service_ids"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// IsActive reports whether the incident currently affects its services.
func (i *Incident) IsActive() bool {
	return i.Status.IsActive()
}

// Incident fields that can change after creation. Used to describe which
// parts of an incident an update touched.
const (
	IncidentFieldTitle    = "title"
	IncidentFieldSeverity = "severity"
	IncidentFieldStatus   = "status"
	IncidentFieldServices = "service_ids"
)
