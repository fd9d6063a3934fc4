// Package postgres provides PostgreSQL implementation of the incident repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	pg "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	i.id, i.organization_id, i.title, i.severity, i.status, i.created_by,
	i.created_at, i.updated_at, i.resolved_at,
	ARRAY(SELECT s.service_id::text FROM incident_services s WHERE s.incident_id = i.id ORDER BY s.position)
`

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ incidents.Repository = (*Repository)(nil)

// CreateIncident inserts an incident and its affected services.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	if err := validServiceIDs(incident.ServiceIDs); err != nil {
		return err
	}

	return pg.InTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO incidents (organization_id, title, severity, status, created_by, created_at, updated_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			incident.OrganizationID,
			incident.Title,
			incident.Severity.String(),
			string(incident.Status),
			incident.CreatedBy,
			incident.CreatedAt,
			incident.UpdatedAt,
			incident.ResolvedAt,
		).Scan(&incident.ID)
		if err != nil {
			return fmt.Errorf("create incident: %w", err)
		}

		return associateServices(ctx, tx, incident.ID, incident.ServiceIDs)
	})
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if uuid.Validate(id) != nil {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents i WHERE i.id = $1`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// UpdateIncident stores the incident's mutable fields and replaces its affected services.
func (r *Repository) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	if err := validServiceIDs(incident.ServiceIDs); err != nil {
		return err
	}

	return pg.InTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE incidents
			SET title = $2, severity = $3, status = $4, resolved_at = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`
		err := tx.QueryRow(ctx, query,
			incident.ID,
			incident.Title,
			incident.Severity.String(),
			string(incident.Status),
			incident.ResolvedAt,
		).Scan(&incident.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return incidents.ErrIncidentNotFound
			}
			return fmt.Errorf("update incident: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM incident_services WHERE incident_id = $1`, incident.ID); err != nil {
			return fmt.Errorf("clear incident services: %w", err)
		}
		return associateServices(ctx, tx, incident.ID, incident.ServiceIDs)
	})
}

// ListIncidents retrieves incidents matching the filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents i WHERE 1=1`
	var args []any
	argNum := 1

	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND i.organization_id = $%d", argNum)
		args = append(args, *filter.OrganizationID)
		argNum++
	}
	if filter.ServiceID != nil {
		if uuid.Validate(*filter.ServiceID) != nil {
			return []domain.Incident{}, nil
		}
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM incident_services s WHERE s.incident_id = i.id AND s.service_id = $%d)", argNum)
		args = append(args, *filter.ServiceID)
		argNum++
	}
	if filter.ActiveOnly {
		query += fmt.Sprintf(" AND i.status <> '%s'", domain.IncidentStatusResolved)
	}

	query += " ORDER BY i.created_at DESC, i.id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	return r.queryIncidents(ctx, query, args...)
}

// ListActiveIncidentsForService returns unresolved incidents affecting the service.
func (r *Repository) ListActiveIncidentsForService(ctx context.Context, serviceID string) ([]domain.Incident, error) {
	if uuid.Validate(serviceID) != nil {
		return []domain.Incident{}, nil
	}

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents i
		JOIN incident_services s ON s.incident_id = i.id
		WHERE s.service_id = $1 AND i.status <> $2
		ORDER BY i.created_at, i.id
	`
	return r.queryIncidents(ctx, query, serviceID, string(domain.IncidentStatusResolved))
}

func (r *Repository) queryIncidents(ctx context.Context, query string, args ...any) ([]domain.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, *incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return result, nil
}

func associateServices(ctx context.Context, tx pgx.Tx, incidentID string, serviceIDs []string) error {
	// Services of another organization match no row and count as missing.
	query := `
		INSERT INTO incident_services (incident_id, service_id, position)
		SELECT i.id, s.id, $3
		FROM incidents i
		JOIN services s ON s.organization_id = i.organization_id
		WHERE i.id = $1 AND s.id = $2
	`
	for i, serviceID := range serviceIDs {
		tag, err := tx.Exec(ctx, query, incidentID, serviceID, i)
		if err != nil {
			if pg.HasCode(err, pg.CodeForeignKeyViolation) {
				return fmt.Errorf("%w: %s", incidents.ErrAffectedServiceNotFound, serviceID)
			}
			return fmt.Errorf("associate service %s: %w", serviceID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", incidents.ErrAffectedServiceNotFound, serviceID)
		}
	}
	return nil
}

func validServiceIDs(ids []string) error {
	for _, id := range ids {
		if uuid.Validate(id) != nil {
			return fmt.Errorf("%w: %s", incidents.ErrAffectedServiceNotFound, id)
		}
	}
	return nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		incident domain.Incident
		severity string
		status   string
	)
	if err := row.Scan(
		&incident.ID,
		&incident.OrganizationID,
		&incident.Title,
		&severity,
		&status,
		&incident.CreatedBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
		&incident.ServiceIDs,
	); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}
	incident.Severity = parsed
	incident.Status = domain.IncidentStatus(status)
	return &incident, nil
}
