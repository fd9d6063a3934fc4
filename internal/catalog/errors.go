package catalog

import "errors"

// Catalog errors.
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrSlugExists      = errors.New("service with this slug already exists")
	// ErrStatusConflict means the live status changed between read and write.
	ErrStatusConflict = errors.New("service status changed concurrently")
)
