package domain

import (
	"fmt"
)

// ServiceStatus represents the operational status of a service.
// Values are ordered by impact: a higher value is a worse status.
type ServiceStatus int

// Service statuses, from best to worst.
const (
	ServiceStatusOperational ServiceStatus = iota
	ServiceStatusDegraded
	ServiceStatusPartialOutage
	ServiceStatusMajorOutage
)

var serviceStatusNames = [...]string{
	ServiceStatusOperational:   "operational",
	ServiceStatusDegraded:      "degraded",
	ServiceStatusPartialOutage: "partial_outage",
	ServiceStatusMajorOutage:   "major_outage",
}

// ServiceStatuses lists every status in ascending order of impact.
func ServiceStatuses() []ServiceStatus {
	return []ServiceStatus{
		ServiceStatusOperational,
		ServiceStatusDegraded,
		ServiceStatusPartialOutage,
		ServiceStatusMajorOutage,
	}
}

// ParseServiceStatus converts a wire name into a ServiceStatus.
func ParseServiceStatus(s string) (ServiceStatus, error) {
	for i, name := range serviceStatusNames {
		if name == s {
			return ServiceStatus(i), nil
		}
	}
	return ServiceStatusOperational, fmt.Errorf("invalid service status: %q", s)
}

// IsValid checks if the service status is one of the known values.
func (s ServiceStatus) IsValid() bool {
	return s >= ServiceStatusOperational && s <= ServiceStatusMajorOutage
}

// IsOperational reports whether the status counts as "up".
func (s ServiceStatus) IsOperational() bool {
	return s == ServiceStatusOperational
}

// IsWorseThan reports whether s has strictly more impact than other.
func (s ServiceStatus) IsWorseThan(other ServiceStatus) bool {
	return s > other
}

func (s ServiceStatus) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("ServiceStatus(%d)", int(s))
	}
	return serviceStatusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s ServiceStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid service status: %d", int(s))
	}
	return []byte(serviceStatusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ServiceStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusPtr returns a pointer to a copy of s.
func StatusPtr(s ServiceStatus) *ServiceStatus {
	return &s
}
