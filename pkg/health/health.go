package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-ambient/pkg/mqtt"
	"github.com/saaga0h/jeeves-ambient/pkg/postgres"
	"github.com/saaga0h/jeeves-ambient/pkg/redis"
)

// StatusProvider exposes agent state to the detailed health check
type StatusProvider interface {
	LocationCount() int
}

// Checker provides health check functionality for agents
type Checker struct {
	mqtt   mqtt.Client
	redis  redis.Client
	agent  StatusProvider
	logger *slog.Logger

	// optional, reported but never degrades the status
	postgres postgres.Client
}

// NewChecker creates a new health checker with the given dependencies.
// agent may be nil.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, agent StatusProvider, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:   mqttClient,
		redis:  redisClient,
		agent:  agent,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
	Locations *int      `json:"locations,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis    string `json:"redis"`
	MQTT     string `json:"mqtt"`
	Postgres string `json:"postgres,omitempty"`
}

// WithPostgres adds the colour history database to the detailed report
func (h *Checker) WithPostgres(client postgres.Client) *Checker {
	h.postgres = client
	return h
}

// HandlerFunc returns 200 while the process is alive, without touching dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc reports MQTT, Redis and (if set) Postgres status and the number of locations
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Redis: "disconnected",
			MQTT:  "disconnected",
		}

		if h.mqtt != nil && h.mqtt.IsConnected() {
			services.MQTT = "connected"
		}

		if h.redis != nil {
			if err := h.redis.Ping(r.Context()); err == nil {
				services.Redis = "connected"
			}
		}

		if h.postgres != nil {
			services.Postgres = "disconnected"
			if st, err := h.postgres.HealthCheck(r.Context()); err == nil && st.Connected {
				services.Postgres = "connected"
			}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if services.Redis == "disconnected" || services.MQTT == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}
		if h.agent != nil {
			count := h.agent.LocationCount()
			response.Locations = &count
		}

		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
