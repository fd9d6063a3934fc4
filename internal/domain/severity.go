package domain

import "fmt"

// Severity represents the impact level of an incident.
// The zero value is SeverityUnknown, which ranks below every real severity.
type Severity int

// Severity levels, from least to most severe.
const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityUnknown:  "unknown",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// ParseSeverity converts a wire name into a Severity.
// Unmapped input yields SeverityUnknown together with an error.
func ParseSeverity(s string) (Severity, error) {
	for i := SeverityLow; i <= SeverityCritical; i++ {
		if severityNames[i] == s {
			return i, nil
		}
	}
	return SeverityUnknown, fmt.Errorf("invalid severity: %q", s)
}

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

func (s Severity) String() string {
	if s < SeverityUnknown || s > SeverityCritical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unknown values decode to SeverityUnknown without failing, so malformed
// incident data never breaks status derivation.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, _ := ParseSeverity(string(text))
	*s = parsed
	return nil
}

// SeverityToStatus maps an incident severity to the service status it implies.
// The mapping is total: anything unmapped is treated as operational.
func SeverityToStatus(severity Severity) ServiceStatus {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return ServiceStatusMajorOutage
	case SeverityMedium:
		return ServiceStatusPartialOutage
	case SeverityLow:
		return ServiceStatusDegraded
	default:
		return ServiceStatusOperational
	}
}

// MaxSeverity returns the highest severity among incidents.
// Ties resolve to the first incident found at that level.
func MaxSeverity(incidents []Incident) Severity {
	maxSeverity := SeverityUnknown
	for _, inc := range incidents {
		if inc.Severity > maxSeverity {
			maxSeverity = inc.Severity
		}
	}
	return maxSeverity
}
