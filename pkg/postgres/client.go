package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"
	"github.com/saaga0h/jeeves-ambient/pkg/config"
)

// ErrNotConnected is returned by Exec before Connect or after Disconnect
var ErrNotConnected = errors.New("postgres: not connected")

// PostgresClient holds the colour history connection pool.
// The pool is swapped under mu so health checks can race with shutdown.
type PostgresClient struct {
	cfg    *config.Config
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewClient creates an unconnected client; nothing is dialled until Connect
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClient{cfg: cfg, logger: logger}
}

// Connect opens the pool with the configured limits and pings it
func (c *PostgresClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to history database",
		"host", c.cfg.PostgresHost,
		"port", c.cfg.PostgresPort,
		"database", c.cfg.PostgresDB,
		"max_connections", c.cfg.PostgresMaxConnections)

	db, err := sql.Open("postgres", c.cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(c.cfg.PostgresMaxConnections)
	db.SetMaxIdleConns(c.cfg.PostgresMaxIdleConnections)
	db.SetConnMaxLifetime(c.cfg.PostgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach history database: %w", err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()

	c.logger.Info("History database connected")
	return nil
}

// Disconnect closes the pool; calling it twice is harmless
func (c *PostgresClient) Disconnect() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	c.logger.Info("Closing history database")
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// Exec runs a statement that returns no rows
func (c *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db := c.pool()
	if db == nil {
		return nil, ErrNotConnected
	}
	return db.ExecContext(ctx, query, args...)
}

func (c *PostgresClient) pool() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
