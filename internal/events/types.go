// Package events provides the pub/sub event bus of the control plane.
// Status lines, jam state transitions and traffic snapshots all flow through
// the hub; the API layer subscribes on connect and unsubscribes on teardown.
package events

import "time"

// EventType identifies the category of event.
type EventType string

// Event types.
const (
	// Human-readable status lines from the jammer and traffic monitor
	EventStatusLine EventType = "status.line"

	// Jamming controller
	EventJamState EventType = "jam.state"

	// Traffic monitor
	EventTrafficSnapshot EventType = "traffic.snapshot"
	EventTrafficState    EventType = "traffic.state"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"` // Component that emitted: "jammer", "traffic", "status"
	Data      interface{} `json:"data"`   // Type-specific payload
}

// ──────────────────────────────────────────────────────────────────────────────
// Type-Specific Payloads
// ──────────────────────────────────────────────────────────────────────────────

// StatusLineData is the payload for EventStatusLine.
type StatusLineData struct {
	Source  string `json:"source"` // Target address or component
	Level   string `json:"level"`
	Message string `json:"message"`
}

// JamStateData is the payload for EventJamState.
type JamStateData struct {
	JammedDevices     []string `json:"jammedDevices"`
	JamPendingDevices []string `json:"jamPendingDevices"`
}

// TrafficStateData is the payload for EventTrafficState.
type TrafficStateData struct {
	Active bool `json:"active"`
}
