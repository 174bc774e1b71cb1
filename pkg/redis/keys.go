package redis

import "fmt"

// AmbientColorKey returns the key for the latest published colour (hash)
// Pattern: ambient:color:{location}
func AmbientColorKey(location string) string {
	return fmt.Sprintf("ambient:color:%s", location)
}

// AmbientEnabledKey returns the key for a location's enabled flag (string)
// Pattern: ambient:enabled:{location}
func AmbientEnabledKey(location string) string {
	return fmt.Sprintf("ambient:enabled:%s", location)
}
