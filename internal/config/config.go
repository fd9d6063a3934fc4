// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
// Nested keys are separated by a double underscore: UPTIME_SERVER__PORT.
const EnvPrefix = "UPTIME_"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Storage       StorageConfig       `koanf:"storage"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Aggregate     AggregateConfig     `koanf:"aggregate"`
	Derivation    DerivationConfig    `koanf:"derivation"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `koanf:"driver"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig configures cross-origin requests. The same origins are allowed
// to open WebSocket connections.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AggregateConfig configures bulk operations.
type AggregateConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// DerivationConfig configures the status derivation engine.
type DerivationConfig struct {
	MaxAttempts int `koanf:"max_attempts"`
}

// NotificationsConfig configures status change notifications.
type NotificationsConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`

	Worker    WorkerConfig    `koanf:"worker"`
	Retry     RetryConfig     `koanf:"retry"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	WebSocket WebSocketConfig `koanf:"websocket"`
}

// WorkerConfig configures the delivery worker pool.
type WorkerConfig struct {
	QueueSize  int `koanf:"queue_size"`
	NumWorkers int `koanf:"num_workers"`
}

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// WebhookConfig configures outgoing webhooks.
type WebhookConfig struct {
	URLs      []string      `koanf:"urls"`
	Username  string        `koanf:"username"`
	IconURL   string        `koanf:"icon_url"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
}

// WebSocketConfig configures the live status stream.
type WebSocketConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the configuration used for keys that are not set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Storage: StorageConfig{
			Driver: StoragePostgres,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Aggregate: AggregateConfig{
			Concurrency: 8,
		},
		Derivation: DerivationConfig{
			MaxAttempts: 3,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Worker: WorkerConfig{
				QueueSize:  1000,
				NumWorkers: 5,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2.0,
			},
			Webhook: WebhookConfig{
				Timeout:   10 * time.Second,
				RateLimit: 5,
				Burst:     1,
			},
			WebSocket: WebSocketConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty) and then from UPTIME_* environment variables. Keys that are not set
// keep their default values.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from the file named by CONFIG_PATH, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// envKey maps UPTIME_SERVER__METRICS_PORT to server.metrics_port.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage.Driver))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.Aggregate.Concurrency <= 0 {
		errs = append(errs, errors.New("aggregate.concurrency must be positive"))
	}
	if c.Derivation.MaxAttempts <= 0 {
		errs = append(errs, errors.New("derivation.max_attempts must be positive"))
	}

	if c.Notifications.Enabled {
		n := c.Notifications
		if n.Worker.QueueSize <= 0 {
			errs = append(errs, errors.New("notifications.worker.queue_size must be positive"))
		}
		if n.Worker.NumWorkers <= 0 {
			errs = append(errs, errors.New("notifications.worker.num_workers must be positive"))
		}
		if n.Retry.MaxAttempts <= 0 {
			errs = append(errs, errors.New("notifications.retry.max_attempts must be positive"))
		}
		if n.Retry.BackoffMultiplier < 1 {
			errs = append(errs, errors.New("notifications.retry.backoff_multiplier must be at least 1"))
		}
		for _, u := range n.Webhook.URLs {
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				errs = append(errs, fmt.Errorf("notifications.webhook.urls: %q is not an http(s) URL", u))
			}
		}
	}

	return errors.Join(errs...)
}
