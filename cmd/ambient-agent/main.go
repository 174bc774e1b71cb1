package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-ambient/internal/ambient"
	"github.com/saaga0h/jeeves-ambient/pkg/config"
	"github.com/saaga0h/jeeves-ambient/pkg/health"
	"github.com/saaga0h/jeeves-ambient/pkg/metrics"
	"github.com/saaga0h/jeeves-ambient/pkg/mqtt"
	"github.com/saaga0h/jeeves-ambient/pkg/postgres"
	"github.com/saaga0h/jeeves-ambient/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → .env → env → flags
	cfg := config.NewConfig()
	cfg.ServiceName = "ambient-agent"
	cfg.LoadDotEnv(".env")
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Ambient Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"history_enabled", cfg.HistoryEnabled(),
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)

	// Colour history is optional
	var history *ambient.History
	var pgClient postgres.Client
	if cfg.HistoryEnabled() {
		pgClient = postgres.NewClient(cfg, logger)
		history = setupHistory(ctx, pgClient, cfg, logger)
	}

	var recorder ambient.HistoryRecorder
	if history != nil {
		recorder = history
	}

	m := metrics.New()

	agent, err := ambient.NewAgent(mqttClient, redisClient, recorder, m, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Agent error: %v\n", err)
		os.Exit(1)
	}

	healthChecker := health.NewChecker(mqttClient, redisClient, agent, logger)
	if history != nil {
		healthChecker.WithPostgres(pgClient)
	}
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, agent, m, logger)

	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if history != nil {
		history.Stop()
	}
	if pgClient != nil {
		if err := pgClient.Disconnect(); err != nil {
			logger.Error("Error disconnecting from Postgres", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Ambient agent shutdown complete")
}

// setupHistory connects to Postgres and starts the retention job.
// Any failure disables history rather than the agent.
func setupHistory(ctx context.Context, pgClient postgres.Client, cfg *config.Config, logger *slog.Logger) *ambient.History {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pgClient.Connect(connectCtx); err != nil {
		logger.Error("Colour history disabled", "error", err)
		return nil
	}

	history := ambient.NewHistory(pgClient, cfg.HistoryRetentionDays, logger)
	if err := history.EnsureSchema(connectCtx); err != nil {
		logger.Error("Colour history disabled", "error", err)
		return nil
	}
	if err := history.StartRetention(); err != nil {
		logger.Error("History retention not scheduled", "error", err)
	}

	return history
}

func startHealthServer(port int, checker *health.Checker, agent *ambient.Agent, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/locations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(agent.Statuses()); err != nil {
			logger.Error("Failed to encode locations", "error", err)
		}
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
