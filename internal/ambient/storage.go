package ambient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-ambient/pkg/redis"
)

// Storage keeps the latest published colour and enabled flags in Redis.
// Anchor sets are never written here.
type Storage struct {
	redis  redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStorage creates a Redis backed storage; ttl 0 keeps colours forever
func NewStorage(redisClient redis.Client, ttl time.Duration, logger *slog.Logger) *Storage {
	return &Storage{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// SaveColor stores the latest colour for a location
func (s *Storage) SaveColor(ctx context.Context, location string, v Value, overridden bool) error {
	key := redis.AmbientColorKey(location)
	fields := map[string]interface{}{
		"color":      v.Hex(),
		"valid":      strconv.FormatBool(v.Valid),
		"overridden": strconv.FormatBool(overridden),
		"timestamp":  v.At.UTC().Format(time.RFC3339Nano),
	}

	if err := s.redis.HSetAll(ctx, key, fields, s.ttl); err != nil {
		return fmt.Errorf("failed to store colour for %s: %w", location, err)
	}
	return nil
}

// SaveEnabled stores the enabled flag for a location
func (s *Storage) SaveEnabled(ctx context.Context, location string, enabled bool) error {
	if err := s.redis.Set(ctx, redis.AmbientEnabledKey(location), strconv.FormatBool(enabled), 0); err != nil {
		return fmt.Errorf("failed to store enabled flag for %s: %w", location, err)
	}
	return nil
}

// LoadEnabled returns the stored enabled flag; found is false when none is stored
func (s *Storage) LoadEnabled(ctx context.Context, location string) (enabled bool, found bool, err error) {
	val, err := s.redis.Get(ctx, redis.AmbientEnabledKey(location))
	if errors.Is(err, redis.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	enabled, err = strconv.ParseBool(val)
	if err != nil {
		return false, false, fmt.Errorf("invalid enabled flag for %s: %q", location, val)
	}
	return enabled, true, nil
}
