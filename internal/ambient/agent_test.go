package ambient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/saaga0h/jeeves-ambient/pkg/config"
	"github.com/saaga0h/jeeves-ambient/pkg/metrics"
	"github.com/saaga0h/jeeves-ambient/pkg/mqtt"
	"github.com/saaga0h/jeeves-ambient/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentAnchorsYAML = `
locations:
  living_room:
    anchors:
      - time: "00:00"
        color: "#000000"
      - time: "12:00"
        color: "#ffffff"
  bedroom:
    enabled: false
    anchors:
      - time: "06:00"
        color: "#ff0000"
`

type agentHarness struct {
	agent   *Agent
	mqtt    *fakeMQTT
	redis   *fakeRedis
	history *fakeHistory
	metrics *metrics.Metrics
	clock   *fakeClock

	// drives override expiry
	overrideClock *fakeClock
}

func newAgentHarness(t *testing.T, prepare func(h *agentHarness)) *agentHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "anchors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(agentAnchorsYAML), 0o644))

	cfg := config.NewConfig()
	cfg.AnchorsFile = path
	cfg.Timezone = "UTC"
	cfg.RefreshIntervalSec = 3600

	h := &agentHarness{
		mqtt:          newFakeMQTT(),
		redis:         newFakeRedis(),
		history:       &fakeHistory{},
		metrics:       metrics.New(),
		clock:         &fakeClock{now: at(6, 0, 0)},
		overrideClock: &fakeClock{now: at(6, 0, 0)},
	}

	agent, err := NewAgent(h.mqtt, h.redis, h.history, h.metrics, cfg, quietLogger())
	require.NoError(t, err)
	agent.now = h.clock.Now
	agent.overrides.now = h.overrideClock.Now
	h.agent = agent

	if prepare != nil {
		prepare(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- agent.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := h.mqtt.handler(mqtt.TopicAmbientCommand)
		return ok
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
		assert.NoError(t, agent.Stop())
	})
	return h
}

// send delivers msg to the handler subscribed on topic; msg.topic holds only the location
func (h *agentHarness) send(t *testing.T, topic string, msg fakeMessage) {
	t.Helper()
	handler, ok := h.mqtt.handler(topic)
	require.True(t, ok, "no subscription for %s", topic)

	switch topic {
	case mqtt.TopicAmbientConfig:
		msg.topic = mqtt.AmbientConfigTopic(msg.topic)
	case mqtt.TopicAmbientCommand:
		msg.topic = mqtt.AmbientCommandTopic(msg.topic)
	}
	handler(msg)
}

func (h *agentHarness) waitForColor(t *testing.T, location string, want string) ContextMessage {
	t.Helper()
	var last ContextMessage
	require.Eventually(t, func() bool {
		msg, ok := h.mqtt.lastContext(location)
		if !ok || msg.Color == nil {
			return false
		}
		last = msg
		return *msg.Color == want
	}, time.Second, 5*time.Millisecond, "waiting for %s on %s", want, location)
	return last
}

func TestAgent_PublishesConfiguredLocations(t *testing.T) {
	h := newAgentHarness(t, nil)

	msg := h.waitForColor(t, "living_room", "#808080")
	assert.Equal(t, "ambient-agent", msg.Source)
	assert.Equal(t, "ambient_color", msg.Type)
	assert.Equal(t, "living_room", msg.Location)
	assert.True(t, msg.Valid)
	assert.False(t, msg.Overridden)
	assert.NotEmpty(t, msg.ID)

	h.mqtt.mu.Lock()
	for _, p := range h.mqtt.published {
		assert.True(t, p.retained, "context messages are retained")
	}
	h.mqtt.mu.Unlock()

	// bedroom is disabled in the file and never gets a colour
	for _, m := range h.mqtt.contextMessages("bedroom") {
		assert.False(t, m.Valid)
	}

	stored, found := h.redis.hashField(redis.AmbientColorKey("living_room"), "color")
	require.True(t, found)
	assert.Equal(t, "#808080", stored)

	assert.Equal(t, 2, h.agent.LocationCount())
	assert.Equal(t, []string{"bedroom", "living_room"}, h.agent.Locations())
	assert.Positive(t, h.history.count())
}

func TestAgent_StoredEnabledFlagWins(t *testing.T) {
	h := newAgentHarness(t, func(h *agentHarness) {
		h.redis.strings[redis.AmbientEnabledKey("bedroom")] = "true"
	})

	h.waitForColor(t, "bedroom", "#ff0000")
	status, ok := h.agent.Status("bedroom")
	require.True(t, ok)
	assert.True(t, status.Enabled)
}

func TestAgent_ConfigMessages(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	// new anchors apply immediately
	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("living_room", map[string]interface{}{
		"anchors": []AnchorSpec{{Time: "00:00", Color: "#00ff00"}},
	}))
	h.waitForColor(t, "living_room", "#00ff00")

	// disabling publishes no value and persists the flag
	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("living_room", map[string]interface{}{"enabled": false}))
	require.Eventually(t, func() bool {
		msg, ok := h.mqtt.lastContext("living_room")
		return ok && !msg.Valid && msg.Color == nil
	}, time.Second, 5*time.Millisecond)
	v, ok := h.redis.stringValue(redis.AmbientEnabledKey("living_room"))
	require.True(t, ok)
	assert.Equal(t, "false", v)

	status, _ := h.agent.Status("living_room")
	assert.False(t, status.Enabled)
	assert.Equal(t, []AnchorSpec{{Time: "00:00", Color: "#00ff00"}}, status.Anchors)

	// invalid anchors are rejected and the previous set is kept
	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("living_room", map[string]interface{}{
		"enabled": true,
		"anchors": []AnchorSpec{{Time: "25:00", Color: "#123456"}},
	}))
	status, _ = h.agent.Status("living_room")
	assert.False(t, status.Enabled)
	assert.Equal(t, "00:00", status.Anchors[0].Time)
}

func TestAgent_ConfigCreatesLocation(t *testing.T) {
	h := newAgentHarness(t, nil)

	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("office", map[string]interface{}{
		"anchors": []AnchorSpec{{Time: "00:00", Color: "#000000"}, {Time: "12:00", Color: "#fefefe"}},
	}))

	h.waitForColor(t, "office", "#7f7f7f")
	assert.Equal(t, 3, h.agent.LocationCount())
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Locations))
}

func TestAgent_OverrideAndClear(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("living_room", CommandMessage{
		Action: ActionOverride, Color: "#0000ff", Minutes: 10,
	}))
	msg := h.waitForColor(t, "living_room", "#0000ff")
	assert.True(t, msg.Overridden)

	status, _ := h.agent.Status("living_room")
	assert.True(t, status.Overridden)
	require.NotNil(t, status.Color)
	assert.Equal(t, "#0000ff", *status.Color)

	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("living_room", CommandMessage{Action: ActionClear}))
	msg = h.waitForColor(t, "living_room", "#808080")
	assert.False(t, msg.Overridden)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Overrides.WithLabelValues(ActionOverride)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Overrides.WithLabelValues(ActionClear)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Publications.WithLabelValues("living_room", "true", "true")))
}

func TestAgent_OverrideExpires(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("living_room", CommandMessage{
		Action: ActionOverride, Color: "#0000ff", Minutes: 1,
	}))
	h.waitForColor(t, "living_room", "#0000ff")

	h.overrideClock.Set(at(6, 2, 0))
	h.agent.cleanupExpiredOverrides()
	h.waitForColor(t, "living_room", "#808080")
}

func TestAgent_OverrideWaitsForDisabledLocation(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("bedroom", CommandMessage{
		Action: ActionOverride, Color: "#00ff00", Minutes: 30,
	}))

	for _, m := range h.mqtt.contextMessages("bedroom") {
		assert.False(t, m.Valid, "a disabled location publishes no value")
		assert.False(t, m.Overridden)
	}
	status, ok := h.agent.Status("bedroom")
	require.True(t, ok)
	assert.False(t, status.Overridden)
	assert.Nil(t, status.Color)

	// enabling the location lets the pending override through
	enabled := true
	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("bedroom", ConfigMessage{Enabled: &enabled}))
	msg := h.waitForColor(t, "bedroom", "#00ff00")
	assert.True(t, msg.Overridden)
	assert.True(t, msg.Valid)
}

func TestAgent_IgnoresBadCommands(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")
	before := len(h.mqtt.contextMessages("living_room"))

	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("nowhere", CommandMessage{Action: ActionOverride, Color: "#0000ff"}))
	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("living_room", CommandMessage{Action: ActionOverride, Color: "blue"}))
	h.send(t, mqtt.TopicAmbientCommand, jsonMessage("living_room", CommandMessage{Action: "dance"}))
	h.send(t, mqtt.TopicAmbientCommand, fakeMessage{topic: "living_room", payload: []byte("{not json")})

	assert.Len(t, h.mqtt.contextMessages("living_room"), before)
	assert.Empty(t, h.mqtt.contextMessages("nowhere"))
	assert.Equal(t, 2, h.agent.LocationCount())
}

func TestAgent_StopReleasesEverything(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	st, ok := h.agent.location("living_room")
	require.True(t, ok)
	assert.True(t, st.evaluator.Active())

	require.NoError(t, h.agent.Stop())
	assert.False(t, st.evaluator.Active())
	assert.True(t, h.redis.closed)
	assert.True(t, h.mqtt.disconnected)
	assert.True(t, h.history.count() > 0)
}

func TestAgent_RefusesNewLocationsAfterStop(t *testing.T) {
	h := newAgentHarness(t, nil)
	h.waitForColor(t, "living_room", "#808080")

	require.NoError(t, h.agent.Stop())

	specs := []AnchorSpec{{Time: "00:00", Color: "#000000"}}
	err := h.agent.configureLocation("late", nil, &specs)
	assert.ErrorIs(t, err, ErrAgentStopped)

	h.send(t, mqtt.TopicAmbientConfig, jsonMessage("office", ConfigMessage{Anchors: &specs}))

	assert.Equal(t, 2, h.agent.LocationCount())
	_, ok := h.agent.location("late")
	assert.False(t, ok)
	assert.Empty(t, h.mqtt.contextMessages("office"))
}
