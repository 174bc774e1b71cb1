package ambient

import "time"

// ContextMessage is published on automation/context/ambient/{location}
type ContextMessage struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Type       string  `json:"type"`
	Location   string  `json:"location"`
	Color      *string `json:"color"`
	Valid      bool    `json:"valid"`
	Overridden bool    `json:"overridden"`
	Timestamp  string  `json:"timestamp"`
}

// ConfigMessage is received on automation/config/ambient/{location}.
// Omitted fields leave the current setting unchanged.
type ConfigMessage struct {
	Enabled *bool         `json:"enabled"`
	Anchors *[]AnchorSpec `json:"anchors"`
}

// CommandMessage is received on automation/command/ambient/{location}
type CommandMessage struct {
	Action  string `json:"action"`
	Color   string `json:"color,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

// Command actions
const (
	ActionOverride = "override"
	ActionClear    = "clear"
)

func newContextMessage(id, location string, v Value, overridden bool) ContextMessage {
	msg := ContextMessage{
		ID:         id,
		Source:     "ambient-agent",
		Type:       "ambient_color",
		Location:   location,
		Valid:      v.Valid,
		Overridden: overridden,
		Timestamp:  v.At.UTC().Format(time.RFC3339),
	}
	if v.Valid {
		hex := v.Color.Hex()
		msg.Color = &hex
	}
	return msg
}
