// Package statuslog defines the append-only log of service status transitions.
//
// The log is the single source of truth for historical service state. Entries
// are only ever inserted; implementations expose no way to change or remove
// them, and the PostgreSQL schema rejects UPDATE and DELETE outright.
package statuslog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// ErrInvalidEntry is returned by Append for entries that fail Validate.
var ErrInvalidEntry = errors.New("invalid status log entry")

// Reader provides the queries used to replay a service's history.
type Reader interface {
	// EntriesInRange returns entries with ChangedAt in [start, end),
	// ascending by (ChangedAt, Seq).
	EntriesInRange(ctx context.Context, serviceID string, start, end time.Time) ([]domain.StatusLogEntry, error)
	// LastEntryBefore returns the latest entry with ChangedAt < instant,
	// or nil when there is none.
	LastEntryBefore(ctx context.Context, serviceID string, instant time.Time) (*domain.StatusLogEntry, error)
}

// Log is the append-only status log.
type Log interface {
	Reader
	Append(ctx context.Context, entry *domain.StatusLogEntry) error
	// List returns entries newest first, for display.
	List(ctx context.Context, serviceID string, limit, offset int) ([]domain.StatusLogEntry, error)
	Count(ctx context.Context, serviceID string) (int, error)
}

// Validate checks that an entry can be appended.
func Validate(entry *domain.StatusLogEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if entry.ServiceID == "" {
		return fmt.Errorf("%w: service id is required", ErrInvalidEntry)
	}
	if !entry.StatusTo.IsValid() {
		return fmt.Errorf("%w: status_to %d", ErrInvalidEntry, int(entry.StatusTo))
	}
	if entry.StatusFrom != nil && !entry.StatusFrom.IsValid() {
		return fmt.Errorf("%w: status_from %d", ErrInvalidEntry, int(*entry.StatusFrom))
	}
	if entry.ChangedAt.IsZero() {
		return fmt.Errorf("%w: changed_at is required", ErrInvalidEntry)
	}
	return nil
}
