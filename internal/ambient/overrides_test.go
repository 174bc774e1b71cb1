package ambient

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOverrideManager(now *time.Time) *OverrideManager {
	om := NewOverrideManager()
	om.now = func() time.Time { return *now }
	return om
}

func TestOverrideManager_Lifecycle(t *testing.T) {
	now := at(12, 0, 0)
	om := newTestOverrideManager(&now)
	red := MustParseColor("#ff0000")

	_, ok := om.ActiveOverride("kitchen")
	assert.False(t, ok)

	o := om.SetOverride("kitchen", red, 30*time.Minute)
	assert.Equal(t, at(12, 30, 0), o.ExpiresAt)

	got, ok := om.ActiveOverride("kitchen")
	require.True(t, ok)
	assert.Equal(t, red, got.Color)

	now = at(12, 30, 0)
	_, ok = om.ActiveOverride("kitchen")
	assert.True(t, ok, "still active at the expiry instant")

	now = at(12, 30, 1)
	_, ok = om.ActiveOverride("kitchen")
	assert.False(t, ok)
}

func TestOverrideManager_Clear(t *testing.T) {
	now := at(12, 0, 0)
	om := newTestOverrideManager(&now)

	assert.False(t, om.ClearOverride("hall"))
	om.SetOverride("hall", MustParseColor("#00ff00"), time.Hour)
	assert.True(t, om.ClearOverride("hall"))

	_, ok := om.ActiveOverride("hall")
	assert.False(t, ok)
}

func TestOverrideManager_CleanupExpired(t *testing.T) {
	now := at(12, 0, 0)
	om := newTestOverrideManager(&now)

	om.SetOverride("a", MustParseColor("#000001"), 10*time.Minute)
	om.SetOverride("b", MustParseColor("#000002"), 20*time.Minute)
	om.SetOverride("c", MustParseColor("#000003"), time.Hour)

	now = at(12, 25, 0)
	expired := om.CleanupExpiredOverrides()
	sort.Strings(expired)
	assert.Equal(t, []string{"a", "b"}, expired)

	for _, loc := range []string{"a", "b"} {
		_, ok := om.ActiveOverride(loc)
		assert.False(t, ok, loc)
	}
	active, ok := om.ActiveOverride("c")
	require.True(t, ok)
	assert.Equal(t, "c", active.Location)

	assert.Empty(t, om.CleanupExpiredOverrides())
}
