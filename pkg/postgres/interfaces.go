package postgres

import (
	"context"
	"database/sql"
)

// Client is the slice of database/sql the colour history needs
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// Exec runs a statement that returns no rows; ErrNotConnected before Connect
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// HealthCheck reports connectivity for the detailed health endpoint
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
