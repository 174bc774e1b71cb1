package ambient

import (
	"sync"
	"time"
)

// Override is a manual colour pinned to a location until it expires
type Override struct {
	Location  string
	Color     Color
	ExpiresAt time.Time
}

// OverrideManager tracks manual colour overrides per location
type OverrideManager struct {
	mu        sync.RWMutex
	overrides map[string]Override
	now       func() time.Time
}

// NewOverrideManager creates a new override manager
func NewOverrideManager() *OverrideManager {
	return &OverrideManager{
		overrides: make(map[string]Override),
		now:       time.Now,
	}
}

// SetOverride pins a colour to a location for the given duration
func (om *OverrideManager) SetOverride(location string, color Color, duration time.Duration) Override {
	om.mu.Lock()
	defer om.mu.Unlock()

	o := Override{
		Location:  location,
		Color:     color,
		ExpiresAt: om.now().Add(duration),
	}
	om.overrides[location] = o
	return o
}

// ActiveOverride returns the override for a location if it has not expired
func (om *OverrideManager) ActiveOverride(location string) (Override, bool) {
	om.mu.Lock()
	defer om.mu.Unlock()

	o, exists := om.overrides[location]
	if !exists {
		return Override{}, false
	}

	if om.now().After(o.ExpiresAt) {
		delete(om.overrides, location)
		return Override{}, false
	}

	return o, true
}

// ClearOverride removes the override for a location
func (om *OverrideManager) ClearOverride(location string) bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	_, exists := om.overrides[location]
	if exists {
		delete(om.overrides, location)
	}
	return exists
}

// CleanupExpiredOverrides removes all expired overrides and returns their locations
func (om *OverrideManager) CleanupExpiredOverrides() []string {
	om.mu.Lock()
	defer om.mu.Unlock()

	now := om.now()
	var expired []string
	for location, o := range om.overrides {
		if now.After(o.ExpiresAt) {
			delete(om.overrides, location)
			expired = append(expired, location)
		}
	}
	return expired
}
