package mqtt

import (
	"fmt"
	"strings"
)

// Topic patterns used by the ambient agent
const (
	// Runtime anchor/enable configuration per location (input)
	TopicAmbientConfig = "automation/config/ambient/+"

	// Manual override commands per location (input)
	TopicAmbientCommand = "automation/command/ambient/+"
)

// AmbientContextTopic returns the output topic for a location
// Pattern: automation/context/ambient/{location}
func AmbientContextTopic(location string) string {
	return fmt.Sprintf("automation/context/ambient/%s", location)
}

// AmbientConfigTopic returns the configuration topic for a location
// Pattern: automation/config/ambient/{location}
func AmbientConfigTopic(location string) string {
	return fmt.Sprintf("automation/config/ambient/%s", location)
}

// AmbientCommandTopic returns the command topic for a location
// Pattern: automation/command/ambient/{location}
func AmbientCommandTopic(location string) string {
	return fmt.Sprintf("automation/command/ambient/%s", location)
}

// LocationFromTopic extracts the trailing location segment of a
// four-level topic such as automation/config/ambient/{location}
func LocationFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[3] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[3], nil
}
