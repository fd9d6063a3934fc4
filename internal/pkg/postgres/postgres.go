// Package postgres opens the PostgreSQL pool and runs schema migrations.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxConnectBackoff = 16 * time.Second

// Config contains PostgreSQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if c.MaxOpenConns > 0 {
		pc.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		pc.MinConns = int32(c.MaxIdleConns)
	}
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	return pc, nil
}

// Connect opens a pool and pings it, retrying with exponential backoff while
// the database is not reachable yet (container start, failover). ctx bounds
// the whole procedure.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	attempts := max(cfg.ConnectAttempts, 1)
	logger := slog.With("host", pc.ConnConfig.Host, "database", pc.ConnConfig.Database)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := open(ctx, pc)
		if err == nil {
			logger.Info("connected to database", "attempts", attempt, "max_conns", pc.MaxConns)
			return pool, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		backoff := connectBackoff(attempt)
		logger.Warn("database not reachable, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

func open(ctx context.Context, pc *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func connectBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxConnectBackoff
	}
	return min(time.Duration(1<<(attempt-1))*time.Second, maxConnectBackoff)
}
