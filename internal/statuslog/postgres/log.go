// Package postgres provides PostgreSQL implementation of the status log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	pg "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/statuslog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, seq, service_id, status_from, status_to, changed_at, changed_by, reason, incident_id`

// Log implements statuslog.Log using PostgreSQL.
type Log struct {
	db *pgxpool.Pool
}

// NewLog creates a new PostgreSQL status log.
func NewLog(db *pgxpool.Pool) *Log {
	return &Log{db: db}
}

var _ statuslog.Log = (*Log)(nil)

// Append inserts a single entry.
func (l *Log) Append(ctx context.Context, entry *domain.StatusLogEntry) error {
	return AppendTx(ctx, l.db, entry)
}

// AppendTx inserts an entry using q, which may be a transaction.
// It fills in the entry's ID and Seq.
func AppendTx(ctx context.Context, q pg.Querier, entry *domain.StatusLogEntry) error {
	if err := statuslog.Validate(entry); err != nil {
		return err
	}

	var from *string
	if entry.StatusFrom != nil {
		s := entry.StatusFrom.String()
		from = &s
	}

	query := `
		INSERT INTO service_status_log (service_id, status_from, status_to, changed_at, changed_by, reason, incident_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, seq
	`
	err := q.QueryRow(ctx, query,
		entry.ServiceID,
		from,
		entry.StatusTo.String(),
		entry.ChangedAt.UTC(),
		entry.ChangedBy,
		entry.Reason,
		entry.IncidentID,
	).Scan(&entry.ID, &entry.Seq)
	if err != nil {
		return fmt.Errorf("append status log entry: %w", err)
	}
	return nil
}

// EntriesInRange returns entries with changed_at in [start, end) in replay order.
func (l *Log) EntriesInRange(ctx context.Context, serviceID string, start, end time.Time) ([]domain.StatusLogEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM service_status_log
		WHERE service_id = $1 AND changed_at >= $2 AND changed_at < $3
		ORDER BY changed_at, seq
	`
	rows, err := l.db.Query(ctx, query, serviceID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query entries in range: %w", err)
	}
	return collectEntries(rows)
}

// LastEntryBefore returns the latest entry strictly before instant, or nil.
func (l *Log) LastEntryBefore(ctx context.Context, serviceID string, instant time.Time) (*domain.StatusLogEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM service_status_log
		WHERE service_id = $1 AND changed_at < $2
		ORDER BY changed_at DESC, seq DESC
		LIMIT 1
	`
	entry, err := scanEntry(l.db.QueryRow(ctx, query, serviceID, instant.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last entry before: %w", err)
	}
	return entry, nil
}

// List returns entries newest first.
func (l *Log) List(ctx context.Context, serviceID string, limit, offset int) ([]domain.StatusLogEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM service_status_log
		WHERE service_id = $1
		ORDER BY changed_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := l.db.Query(ctx, query, serviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}
	return collectEntries(rows)
}

// Count returns the number of entries of a service.
func (l *Log) Count(ctx context.Context, serviceID string) (int, error) {
	var count int
	err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM service_status_log WHERE service_id = $1`, serviceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count status log: %w", err)
	}
	return count, nil
}

func collectEntries(rows pgx.Rows) ([]domain.StatusLogEntry, error) {
	defer rows.Close()

	result := make([]domain.StatusLogEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status log entry: %w", err)
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status log: %w", err)
	}
	return result, nil
}

func scanEntry(row pgx.Row) (*domain.StatusLogEntry, error) {
	var (
		entry domain.StatusLogEntry
		from  *string
		to    string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Seq,
		&entry.ServiceID,
		&from,
		&to,
		&entry.ChangedAt,
		&entry.ChangedBy,
		&entry.Reason,
		&entry.IncidentID,
	); err != nil {
		return nil, err
	}

	status, err := domain.ParseServiceStatus(to)
	if err != nil {
		return nil, err
	}
	entry.StatusTo = status

	if from != nil {
		status, err := domain.ParseServiceStatus(*from)
		if err != nil {
			return nil, err
		}
		entry.StatusFrom = &status
	}
	entry.ChangedAt = entry.ChangedAt.UTC()

	return &entry, nil
}
