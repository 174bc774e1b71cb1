package redis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or field does not exist
var ErrNotFound = errors.New("redis: not found")

// Client represents a Redis client interface for testing and abstraction
type Client interface {
	// Set sets a key to a value with an optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get gets the value of a key, ErrNotFound if it does not exist
	Get(ctx context.Context, key string) (string, error)

	// HSetAll writes several hash fields and, when ttl > 0, the key's expiry atomically
	HSetAll(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error

	// Ping checks the connection to Redis
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}
