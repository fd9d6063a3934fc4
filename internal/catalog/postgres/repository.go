// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	pg "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	statuslogpg "github.com/bissquit/uptime-garden/internal/statuslog/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const serviceColumns = `id, organization_id, name, slug, description, status, created_at, updated_at`

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ catalog.Repository = (*Repository)(nil)

// CreateService inserts a service and, when given, its creation log entry in one transaction.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service, creation *domain.StatusLogEntry) error {
	return pg.InTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO services (organization_id, name, slug, description, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			service.OrganizationID,
			service.Name,
			service.Slug,
			service.Description,
			service.Status.String(),
			service.CreatedAt,
			service.UpdatedAt,
		).Scan(&service.ID)
		if err != nil {
			if pg.HasCode(err, pg.CodeUniqueViolation) {
				return catalog.ErrSlugExists
			}
			return fmt.Errorf("create service: %w", err)
		}

		if creation == nil {
			return nil
		}
		creation.ServiceID = service.ID
		creation.StatusFrom = nil
		creation.StatusTo = service.Status
		return statuslogpg.AppendTx(ctx, tx, creation)
	})
}

// GetServiceByID retrieves a service by its ID.
func (r *Repository) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	if uuid.Validate(id) != nil {
		return nil, catalog.ErrServiceNotFound
	}
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	return r.getService(ctx, query, id)
}

// GetServiceBySlug retrieves a service by organization and slug.
func (r *Repository) GetServiceBySlug(ctx context.Context, organizationID, slug string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 AND slug = $2`
	return r.getService(ctx, query, organizationID, slug)
}

func (r *Repository) getService(ctx context.Context, query string, args ...any) (*domain.Service, error) {
	service, err := scanService(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return service, nil
}

// ListServices retrieves all services matching the provided filter.
func (r *Repository) ListServices(ctx context.Context, filter catalog.ServiceFilter) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE 1=1`
	var args []any
	argNum := 1

	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND organization_id = $%d", argNum)
		args = append(args, *filter.OrganizationID)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status.String())
	}

	query += ` ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// ApplyStatusTransition moves the service from expected to entry.StatusTo and
// appends entry, in one transaction. The status update is conditional on the
// current value, so a concurrent writer makes it fail with ErrStatusConflict.
func (r *Repository) ApplyStatusTransition(ctx context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error {
	if uuid.Validate(entry.ServiceID) != nil {
		return catalog.ErrServiceNotFound
	}
	return pg.InTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE services
			SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4
		`
		result, err := tx.Exec(ctx, query,
			entry.ServiceID,
			entry.StatusTo.String(),
			entry.ChangedAt.UTC(),
			expected.String(),
		)
		if err != nil {
			return fmt.Errorf("update service status: %w", err)
		}

		if result.RowsAffected() == 0 {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM services WHERE id = $1)`, entry.ServiceID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check service exists: %w", err)
			}
			if !exists {
				return catalog.ErrServiceNotFound
			}
			return catalog.ErrStatusConflict
		}

		return statuslogpg.AppendTx(ctx, tx, entry)
	})
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var (
		service domain.Service
		status  string
	)
	if err := row.Scan(
		&service.ID,
		&service.OrganizationID,
		&service.Name,
		&service.Slug,
		&service.Description,
		&status,
		&service.CreatedAt,
		&service.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseServiceStatus(status)
	if err != nil {
		return nil, err
	}
	service.Status = parsed
	return &service, nil
}
