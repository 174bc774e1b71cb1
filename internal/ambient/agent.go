package ambient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-ambient/pkg/config"
	"github.com/saaga0h/jeeves-ambient/pkg/metrics"
	"github.com/saaga0h/jeeves-ambient/pkg/mqtt"
	"github.com/saaga0h/jeeves-ambient/pkg/redis"
)

// ErrAgentStopped is returned when a location is added after Stop
var ErrAgentStopped = errors.New("ambient agent stopped")

// publishTimeout bounds the Redis/Postgres writes done per publication
const publishTimeout = 5 * time.Second

// locationState is the evaluator and publication state of one location
type locationState struct {
	name      string
	evaluator *Evaluator

	mu      sync.Mutex
	enabled bool
	specs   []AnchorSpec

	// Last value sent to MQTT, guarded by publishMu
	publishMu    sync.Mutex
	published    Value
	overridden   bool
	hasPublished bool
}

// LocationStatus is a snapshot of a location for health and diagnostics
type LocationStatus struct {
	Location   string       `json:"location"`
	Enabled    bool         `json:"enabled"`
	Active     bool         `json:"active"`
	Color      *string      `json:"color"`
	Overridden bool         `json:"overridden"`
	Anchors    []AnchorSpec `json:"anchors"`
}

// Agent publishes a time-interpolated ambient colour per location
type Agent struct {
	mqtt      mqtt.Client
	redis     redis.Client
	storage   *Storage
	history   HistoryRecorder
	metrics   *metrics.Metrics
	cfg       *config.Config
	logger    *slog.Logger
	resolver  Resolver
	solar     SolarSchedule
	overrides *OverrideManager
	now       func() time.Time

	mu        sync.RWMutex
	locations map[string]*locationState
	runCtx    context.Context
	wg        sync.WaitGroup
	stopped   bool

	// Periodic override cleanup loop
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAgent creates a new ambient agent. history and m may be nil.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, history HistoryRecorder, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	precision, err := ParsePrecision(cfg.Precision)
	if err != nil {
		return nil, err
	}
	duplicates, err := ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	return &Agent{
		mqtt:      mqttClient,
		redis:     redisClient,
		storage:   NewStorage(redisClient, time.Duration(cfg.ColorTTLSec)*time.Second, logger),
		history:   history,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		resolver:  Resolver{Precision: precision, Duplicates: duplicates},
		solar:     SolarSchedule{Latitude: cfg.Latitude, Longitude: cfg.Longitude, Location: loc},
		overrides: NewOverrideManager(),
		now:       func() time.Time { return time.Now().In(loc) },
		locations: make(map[string]*locationState),
		runCtx:    context.Background(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start starts the ambient agent and blocks until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting ambient agent",
		"service_name", a.cfg.ServiceName,
		"anchors_file", a.cfg.AnchorsFile,
		"refresh_interval_sec", a.cfg.RefreshIntervalSec,
		"precision", a.resolver.Precision.String(),
		"duplicate_policy", a.resolver.Duplicates.String())

	// Connect to MQTT broker
	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// Verify Redis connection
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	// Load per-location anchors, one evaluator each
	file, err := LoadAnchorsFile(a.cfg.AnchorsFile)
	if err != nil {
		return err
	}
	for _, name := range file.LocationNames() {
		if err := a.loadLocation(ctx, name, file.Locations[name]); err != nil {
			return err
		}
	}

	// Subscribe to runtime configuration
	if err := a.mqtt.Subscribe(mqtt.TopicAmbientConfig, 0, a.handleConfigMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicAmbientConfig, err)
	}
	a.logger.Info("Subscribed to ambient configuration", "topic", mqtt.TopicAmbientConfig)

	// Subscribe to manual override commands
	if err := a.mqtt.Subscribe(mqtt.TopicAmbientCommand, 0, a.handleCommandMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicAmbientCommand, err)
	}
	a.logger.Info("Subscribed to ambient commands", "topic", mqtt.TopicAmbientCommand)

	// Start override expiry loop
	a.startOverrideCleanupLoop()

	a.logger.Info("Ambient agent started and ready", "location_count", a.LocationCount())

	<-ctx.Done()
	a.logger.Info("Ambient agent stopping")

	return nil
}

// Stop tears down every evaluator and closes connections
func (a *Agent) Stop() error {
	a.logger.Info("Stopping ambient agent")

	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.ticker != nil {
			a.ticker.Stop()
		}
		a.mu.Unlock()
		close(a.stopChan)
	})

	// No new evaluators after this point, so the snapshot is complete
	a.mu.Lock()
	a.stopped = true
	states := make([]*locationState, 0, len(a.locations))
	for _, st := range a.locations {
		states = append(states, st)
	}
	a.mu.Unlock()

	for _, st := range states {
		st.evaluator.Stop()
	}
	a.wg.Wait()

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Ambient agent stopped")
	return nil
}

// loadLocation applies a location from the anchors file. A flag stored in
// Redis wins over the file default.
func (a *Agent) loadLocation(ctx context.Context, name string, lc LocationConfig) error {
	enabled := lc.IsEnabled()

	stored, found, err := a.storage.LoadEnabled(ctx, name)
	if err != nil {
		a.logger.Warn("Failed to read stored enabled flag", "location", name, "error", err)
	} else if found {
		enabled = stored
	}

	specs := lc.Anchors
	if err := a.configureLocation(name, &enabled, &specs); err != nil {
		return fmt.Errorf("failed to configure location %s: %w", name, err)
	}

	a.logger.Info("Loaded location",
		"location", name,
		"enabled", enabled,
		"anchor_count", len(specs))
	return nil
}

// configureLocation creates or updates a location. nil arguments leave the
// current value unchanged; new locations default to enabled.
func (a *Agent) configureLocation(name string, enabled *bool, specs *[]AnchorSpec) error {
	var tmpl *Template
	if specs != nil {
		var err error
		tmpl, err = ParseTemplate(*specs, a.solar, a.logger.With("location", name))
		if err != nil {
			return err
		}
	}

	a.mu.Lock()
	st, exists := a.locations[name]
	if !exists && a.stopped {
		a.mu.Unlock()
		return ErrAgentStopped
	}
	if !exists {
		st = a.newLocationState(name)
		a.locations[name] = st
		a.metrics.SetLocations(len(a.locations))
		runCtx := a.runCtx
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := st.evaluator.Run(runCtx); err != nil {
				a.logger.Error("Evaluator failed", "location", name, "error", err)
			}
		}()
	}
	a.mu.Unlock()

	if !exists && enabled == nil {
		on := true
		enabled = &on
	}

	st.mu.Lock()
	if tmpl != nil {
		st.specs = tmpl.Specs()
	}
	if enabled != nil {
		st.enabled = *enabled
	}
	st.mu.Unlock()

	if tmpl != nil {
		st.evaluator.SetSchedule(tmpl)
	}
	if enabled != nil {
		st.evaluator.SetEnabled(*enabled)
	}

	return nil
}

func (a *Agent) newLocationState(name string) *locationState {
	st := &locationState{name: name}
	st.evaluator = NewEvaluator(a.resolver,
		func(v Value) { a.publishValue(st, v) },
		WithInterval(a.cfg.RefreshInterval()),
		WithClock(a.now),
		WithLogger(a.logger.With("location", name)))
	return st
}

// publishValue stores and, when it changed, publishes the value for a location.
// An active manual override replaces the resolved colour, but only while the
// evaluator is Active: a disabled location always publishes no value.
func (a *Agent) publishValue(st *locationState, v Value) {
	st.publishMu.Lock()
	defer st.publishMu.Unlock()

	out, overridden := v, false
	if o, ok := a.overrides.ActiveOverride(st.name); ok && st.evaluator.Active() {
		out = Value{Color: o.Color, Valid: true, At: v.At}
		overridden = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := a.storage.SaveColor(ctx, st.name, out, overridden); err != nil {
		a.logger.Warn("Failed to store colour", "location", st.name, "error", err)
		a.metrics.StorageError()
	}

	if st.hasPublished && st.published.Equal(out) && st.overridden == overridden {
		return
	}

	if err := a.publishContext(st.name, out, overridden); err != nil {
		a.logger.Error("Failed to publish ambient colour", "location", st.name, "error", err)
		return
	}
	st.published, st.overridden, st.hasPublished = out, overridden, true
	a.metrics.ObservePublication(st.name, out.Valid, overridden, float64(out.At.Unix()))

	if a.history != nil {
		if err := a.history.Record(ctx, st.name, out, overridden); err != nil {
			a.logger.Warn("Failed to record colour history", "location", st.name, "error", err)
			a.metrics.HistoryError()
		}
	}

	a.logger.Info("Ambient colour published",
		"location", st.name,
		"color", out.Hex(),
		"valid", out.Valid,
		"overridden", overridden)
}

// republish pushes the evaluator's latest value through publishValue again,
// used when an override starts, ends or expires
func (a *Agent) republish(st *locationState) {
	v := st.evaluator.Current()
	v.At = a.now()
	a.publishValue(st, v)
}

// publishContext publishes the retained context message
func (a *Agent) publishContext(location string, v Value, overridden bool) error {
	msg := newContextMessage(uuid.NewString(), location, v, overridden)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal context message: %w", err)
	}

	topic := mqtt.AmbientContextTopic(location)
	if err := a.mqtt.Publish(topic, 0, true, payload); err != nil {
		return fmt.Errorf("failed to publish context to %s: %w", topic, err)
	}

	a.logger.Debug("Published ambient context", "topic", topic)
	return nil
}

// handleConfigMessage applies runtime configuration for a location
func (a *Agent) handleConfigMessage(msg mqtt.Message) {
	location, err := mqtt.LocationFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Invalid config topic format", "topic", msg.Topic())
		return
	}

	var cfgMsg ConfigMessage
	if err := json.Unmarshal(msg.Payload(), &cfgMsg); err != nil {
		a.logger.Error("Failed to parse config message",
			"location", location,
			"error", err)
		return
	}

	if cfgMsg.Enabled == nil && cfgMsg.Anchors == nil {
		a.logger.Warn("Config message has neither enabled nor anchors", "location", location)
		return
	}

	if err := a.configureLocation(location, cfgMsg.Enabled, cfgMsg.Anchors); err != nil {
		a.logger.Error("Rejected anchor configuration",
			"location", location,
			"error", err)
		return
	}

	if cfgMsg.Enabled != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := a.storage.SaveEnabled(ctx, location, *cfgMsg.Enabled); err != nil {
			a.logger.Warn("Failed to store enabled flag", "location", location, "error", err)
		}
	}

	a.logger.Info("Applied ambient configuration",
		"location", location,
		"enabled_set", cfgMsg.Enabled != nil,
		"anchors_set", cfgMsg.Anchors != nil)
}

// handleCommandMessage handles manual override commands
func (a *Agent) handleCommandMessage(msg mqtt.Message) {
	location, err := mqtt.LocationFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Invalid command topic format", "topic", msg.Topic())
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		a.logger.Error("Failed to parse command message",
			"location", location,
			"error", err)
		return
	}

	st, exists := a.location(location)
	if !exists {
		a.logger.Warn("Command for unknown location", "location", location, "action", cmd.Action)
		return
	}

	switch cmd.Action {
	case ActionOverride:
		c, err := ParseColor(cmd.Color)
		if err != nil {
			a.logger.Error("Invalid override colour", "location", location, "error", err)
			return
		}
		minutes := cmd.Minutes
		if minutes <= 0 {
			minutes = a.cfg.OverrideMinutes
		}
		o := a.overrides.SetOverride(location, c, time.Duration(minutes)*time.Minute)
		a.logger.Info("Manual colour override set",
			"location", location,
			"color", c.Hex(),
			"expires_at", o.ExpiresAt.Format(time.RFC3339))
		a.metrics.ObserveOverride(ActionOverride)
		a.republish(st)

	case ActionClear:
		if a.overrides.ClearOverride(location) {
			a.logger.Info("Manual colour override cleared", "location", location)
			a.metrics.ObserveOverride(ActionClear)
			a.republish(st)
		}

	default:
		a.logger.Warn("Unknown ambient command", "location", location, "action", cmd.Action)
	}
}

// startOverrideCleanupLoop republishes locations whose override expired
func (a *Agent) startOverrideCleanupLoop() {
	ticker := time.NewTicker(a.cfg.RefreshInterval())
	a.mu.Lock()
	a.ticker = ticker
	a.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				a.cleanupExpiredOverrides()
			case <-a.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

func (a *Agent) cleanupExpiredOverrides() {
	for _, location := range a.overrides.CleanupExpiredOverrides() {
		a.logger.Info("Manual colour override expired", "location", location)
		if st, ok := a.location(location); ok {
			a.republish(st)
		}
	}
}

func (a *Agent) location(name string) (*locationState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.locations[name]
	return st, ok
}

// LocationCount returns the number of configured locations (for health check)
func (a *Agent) LocationCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.locations)
}

// Locations returns the configured location names in sorted order
func (a *Agent) Locations() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.locations))
	for name := range a.locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a snapshot of one location
func (a *Agent) Status(name string) (LocationStatus, bool) {
	st, ok := a.location(name)
	if !ok {
		return LocationStatus{}, false
	}

	st.mu.Lock()
	status := LocationStatus{
		Location: name,
		Enabled:  st.enabled,
		Anchors:  append([]AnchorSpec(nil), st.specs...),
	}
	st.mu.Unlock()

	status.Active = st.evaluator.Active()

	st.publishMu.Lock()
	if st.hasPublished && st.published.Valid {
		hex := st.published.Color.Hex()
		status.Color = &hex
	}
	status.Overridden = st.overridden
	st.publishMu.Unlock()

	return status, true
}

// Statuses returns a snapshot of every location
func (a *Agent) Statuses() []LocationStatus {
	names := a.Locations()
	statuses := make([]LocationStatus, 0, len(names))
	for _, name := range names {
		if status, ok := a.Status(name); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
