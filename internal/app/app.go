// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/aggregate"
	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/derivation"
	"github.com/bissquit/uptime-garden/internal/incidents"
	"github.com/bissquit/uptime-garden/internal/notifications"
	"github.com/bissquit/uptime-garden/internal/notifications/webhook"
	"github.com/bissquit/uptime-garden/internal/notifications/ws"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"github.com/bissquit/uptime-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config             *config.Config
	logger             *slog.Logger
	storage            *Storage
	core               *Core
	server             *http.Server
	metricsServer      *http.Server
	backgroundCancel   context.CancelFunc
	notificationWorker *notifications.Worker
	hub                *ws.Hub
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := InitLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	storage, err := OpenStorage(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		storage:          storage,
		backgroundCancel: backgroundCancel,
	}

	if storage.DB != nil {
		go app.collectDBMetrics(backgroundCtx)
	}

	publisher, err := app.setupNotifications(backgroundCtx)
	if err != nil {
		backgroundCancel()
		storage.Close()
		return nil, fmt.Errorf("setup notifications: %w", err)
	}

	app.core = NewCore(cfg, storage, publisher)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"storage", a.config.Storage.Driver,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// closes websocket clients and stops metric collection
	a.backgroundCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// Servers are drained, no more status changes can be published.
	if a.notificationWorker != nil {
		a.notificationWorker.Stop()
	}

	a.storage.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Core returns the wired domain services.
func (a *App) Core() *Core {
	return a.core
}

// NotificationWorker returns the notification worker instance.
// Returns nil if notifications are disabled.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.storage.DB.Stat())

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.storage.DB.Stat())
		case <-ctx.Done():
			return
		}
	}
}

// setupNotifications starts the delivery worker and returns the publisher
// handed to the derivation engine, or nil when notifications are disabled.
func (a *App) setupNotifications(ctx context.Context) (derivation.Publisher, error) {
	cfg := a.config.Notifications

	slog.Info("notifications configured",
		"enabled", cfg.Enabled,
		"webhooks", len(cfg.Webhook.URLs),
		"websocket_enabled", cfg.WebSocket.Enabled,
	)

	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.WebSocket.Enabled {
		a.hub = ws.New(a.config.CORS.AllowedOrigins)
		go a.hub.Run(ctx)
	}

	worker, notifier, err := StartNotifications(ctx, cfg, a.hub)
	if err != nil {
		return nil, err
	}
	a.notificationWorker = worker

	return notifier, nil
}

// StartNotifications starts a delivery worker for the configured webhooks
// and, when hub is not nil, the WebSocket stream. The returned notifier
// publishes status changes into the worker.
func StartNotifications(ctx context.Context, cfg config.NotificationsConfig, hub *ws.Hub) (*notifications.Worker, *notifications.Notifier, error) {
	senders := []notifications.Sender{
		webhook.NewSender(webhook.Config{
			Username:  cfg.Webhook.Username,
			IconURL:   cfg.Webhook.IconURL,
			Timeout:   cfg.Webhook.Timeout,
			RateLimit: cfg.Webhook.RateLimit,
			Burst:     cfg.Webhook.Burst,
		}),
	}

	channels := make([]notifications.Channel, 0, len(cfg.Webhook.URLs)+1)
	for _, u := range cfg.Webhook.URLs {
		channels = append(channels, notifications.Channel{Type: notifications.ChannelTypeWebhook, Target: u})
	}

	if hub != nil {
		senders = append(senders, hub)
		channels = append(channels, notifications.Channel{Type: notifications.ChannelTypeWebSocket})
	}

	if len(channels) == 0 {
		slog.Warn("notifications enabled but no channel configured")
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("create notification renderer: %w", err)
	}

	worker := notifications.NewWorker(notifications.WorkerConfig{
		QueueSize:         cfg.Worker.QueueSize,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		NumWorkers:        cfg.Worker.NumWorkers,
	}, notifications.NewDispatcher(senders...), renderer)
	worker.Start(ctx)

	return worker, notifications.NewNotifier(worker, channels, cfg.BaseURL), nil
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	// Long-lived connection, kept out of the request timeout.
	if a.hub != nil {
		r.Get("/api/v1/ws", a.hub.ServeHTTP)
	}

	catalogHandler := catalog.NewHandler(a.core.Catalog)
	incidentsHandler := incidents.NewHandler(a.core.Incidents)
	uptimeHandler := uptime.NewHandler(a.core.Catalog, a.core.Calculator, a.core.Charter)
	aggregateHandler := aggregate.NewHandler(a.core.Aggregator)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api/v1", func(r chi.Router) {
			catalogHandler.RegisterRoutes(r)
			uptimeHandler.RegisterRoutes(r)
			incidentsHandler.RegisterRoutes(r)
			aggregateHandler.RegisterRoutes(r)
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.storage.DB == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.storage.DB.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

// InitLogger builds a logger writing to w from the log configuration.
func InitLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
