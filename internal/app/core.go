package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/uptime-garden/internal/aggregate"
	"github.com/bissquit/uptime-garden/internal/catalog"
	catalogpostgres "github.com/bissquit/uptime-garden/internal/catalog/postgres"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/derivation"
	"github.com/bissquit/uptime-garden/internal/incidents"
	incidentspostgres "github.com/bissquit/uptime-garden/internal/incidents/postgres"
	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/statuslog"
	statuslogpostgres "github.com/bissquit/uptime-garden/internal/statuslog/postgres"
	"github.com/bissquit/uptime-garden/internal/store/memory"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage bundles the repositories of one storage backend.
type Storage struct {
	Catalog   catalog.Repository
	Log       statuslog.Log
	Incidents incidents.Repository

	// DB is nil for the memory driver.
	DB *pgxpool.Pool
}

// OpenStorage connects to the configured storage backend. For PostgreSQL it
// applies pending migrations first when database.auto_migrate is set.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		store := memory.New()
		slog.Warn("using in-memory storage: data is lost on restart")
		return &Storage{Catalog: store, Log: store, Incidents: store}, nil

	case config.StoragePostgres:
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		return &Storage{
			Catalog:   catalogpostgres.NewRepository(db),
			Log:       statuslogpostgres.NewLog(db),
			Incidents: incidentspostgres.NewRepository(db),
			DB:        db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Close releases the database pool, if any.
func (s *Storage) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}

// Core holds the domain services built on top of a Storage.
type Core struct {
	Catalog    *catalog.Service
	Incidents  *incidents.Service
	Engine     *derivation.Engine
	Calculator *uptime.Calculator
	Charter    *uptime.Charter
	Aggregator *aggregate.Aggregator
}

// NewCore wires the domain services. A nil publisher discards status changes.
func NewCore(cfg *config.Config, storage *Storage, publisher derivation.Publisher) *Core {
	catalogService := catalog.NewService(storage.Catalog, storage.Log)

	engine := derivation.NewEngine(catalogService, storage.Incidents, publisher, derivation.Config{
		MaxAttempts: cfg.Derivation.MaxAttempts,
	})

	calculator := uptime.NewCalculator(storage.Log, catalogService)

	return &Core{
		Catalog:    catalogService,
		Incidents:  incidents.NewService(storage.Incidents, engine),
		Engine:     engine,
		Calculator: calculator,
		Charter:    uptime.NewCharter(calculator),
		Aggregator: aggregate.NewAggregator(calculator, catalogService, engine, aggregate.Config{
			Concurrency: cfg.Aggregate.Concurrency,
		}),
	}
}
