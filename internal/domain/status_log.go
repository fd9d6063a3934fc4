package domain

import "time"

// StatusLogEntry is an immutable record of one status transition of a service.
//
// Entries of a service are ordered by (ChangedAt, Seq); Seq is assigned on
// append and breaks ties between entries with equal timestamps. StatusTo of an
// entry holds from its ChangedAt until the next entry's ChangedAt.
type StatusLogEntry struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	ServiceID  string         `json:"service_id"`
	StatusFrom *ServiceStatus `json:"status_from"`
	StatusTo   ServiceStatus  `json:"status_to"`
	ChangedAt  time.Time      `json:"changed_at"`
	ChangedBy  *string        `json:"changed_by,omitempty"`
	Reason     *string        `json:"reason,omitempty"`
	IncidentID *string        `json:"incident_id,omitempty"`
}

// IsCreation reports whether the entry is the creation event of a service.
func (e *StatusLogEntry) IsCreation() bool {
	return e.StatusFrom == nil
}

// Before reports whether e precedes other in replay order.
func (e *StatusLogEntry) Before(other *StatusLogEntry) bool {
	if e.ChangedAt.Equal(other.ChangedAt) {
		return e.Seq < other.Seq
	}
	return e.ChangedAt.Before(other.ChangedAt)
}
