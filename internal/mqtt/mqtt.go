// Package mqtt publishes event log entries and system lifecycle events
// to an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
)

// Topics are the MQTT topics the daemon publishes to.
type Topics struct {
	Events string // one message per event log entry
	System string // STARTUP, SHUTDOWN, HEARTBEAT, OFFLINE
}

// DefaultTopics returns the stock topic names.
func DefaultTopics() Topics {
	return Topics{Events: "home/bms/events", System: "home/bms/system"}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an event log entry to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(entry logic.LogEntry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for an event log entry.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload contains the entry details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// FormatPayload creates the JSON payload for an event log entry.
func FormatPayload(entry logic.LogEntry) ([]byte, error) {
	return json.Marshal(Payload{
		Event: EventPayload{
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339),
			Level:     string(entry.Level),
			Kind:      string(entry.Kind),
			Message:   entry.Message,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (the OFFLINE will) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
