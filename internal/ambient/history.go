package ambient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-ambient/pkg/postgres"
	"github.com/sony/gobreaker"
)

// HistoryRecorder records colour changes
type HistoryRecorder interface {
	Record(ctx context.Context, location string, v Value, overridden bool) error
}

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS ambient_color_history (
	id          UUID PRIMARY KEY,
	location    TEXT NOT NULL,
	color       TEXT,
	valid       BOOLEAN NOT NULL,
	overridden  BOOLEAN NOT NULL DEFAULT FALSE,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ambient_color_history_location_time
	ON ambient_color_history (location, recorded_at DESC);`

// History writes colour changes to Postgres behind a circuit breaker and
// prunes old rows once a day.
type History struct {
	db        postgres.Client
	breaker   *gobreaker.CircuitBreaker
	scheduler *gocron.Scheduler
	retention time.Duration
	logger    *slog.Logger
}

// NewHistory creates a history recorder keeping retentionDays of rows
func NewHistory(db postgres.Client, retentionDays int, logger *slog.Logger) *History {
	h := &History{
		db:        db,
		scheduler: gocron.NewScheduler(time.UTC),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
	}

	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ambient-history",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("History circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return h
}

// EnsureSchema creates the history table if needed
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// Record inserts one colour change
func (h *History) Record(ctx context.Context, location string, v Value, overridden bool) error {
	var color interface{}
	if v.Valid {
		color = v.Color.Hex()
	}

	_, err := h.breaker.Execute(func() (interface{}, error) {
		return h.db.Exec(ctx,
			`INSERT INTO ambient_color_history (id, location, color, valid, overridden, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), location, color, v.Valid, overridden, v.At.UTC())
	})
	if err != nil {
		return fmt.Errorf("failed to record colour history for %s: %w", location, err)
	}
	return nil
}

// Prune deletes rows older than the retention period
func (h *History) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-h.retention).UTC()

	res, err := h.db.Exec(ctx, `DELETE FROM ambient_color_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune colour history: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return deleted, nil
}

// StartRetention schedules the daily prune job
func (h *History) StartRetention() error {
	if h.retention <= 0 {
		h.logger.Info("History retention disabled")
		return nil
	}

	_, err := h.scheduler.Every(1).Day().At("03:30").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := h.Prune(ctx)
		if err != nil {
			h.logger.Error("History prune failed", "error", err)
			return
		}
		h.logger.Info("Pruned colour history", "deleted", deleted, "retention", h.retention)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule history retention: %w", err)
	}

	h.scheduler.StartAsync()
	return nil
}

// Stop stops the retention job
func (h *History) Stop() {
	h.scheduler.Stop()
}
