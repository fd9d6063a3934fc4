package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound        = errors.New("incident not found")
	ErrInvalidSeverity         = errors.New("invalid severity")
	ErrInvalidStatus           = errors.New("invalid incident status")
	ErrIncidentAlreadyResolved = errors.New("incident is already resolved")
	ErrAffectedServiceNotFound = errors.New("affected service not found")
	ErrNoAffectedServices      = errors.New("incident must affect at least one service")
)
