package postgres

import (
	"context"
	"time"
)

// HealthStatus is what the detailed health endpoint learns about the history database
type HealthStatus struct {
	Connected     bool      `json:"connected"`
	ServerVersion string    `json:"server_version,omitempty"`
	Database      string    `json:"database"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthCheck pings the pool. Failures are reported in the status, not as an error.
func (c *PostgresClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Database: c.cfg.PostgresDB, CheckedAt: time.Now()}

	db := c.pool()
	if db == nil {
		status.Error = ErrNotConnected.Error()
		return status, nil
	}
	if err := db.PingContext(ctx); err != nil {
		status.Error = "ping failed: " + err.Error()
		return status, nil
	}

	status.Connected = true
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&status.ServerVersion); err != nil {
		c.logger.Debug("Could not read server version", "error", err)
	}
	return status, nil
}
