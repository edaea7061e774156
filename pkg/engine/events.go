package engine

import (
	"time"
)

// EventType categorizes lifecycle events.
type EventType string

const (
	// EventTypeAppAdded indicates an application record was registered.
	EventTypeAppAdded EventType = "app_added"

	// EventTypeAppUpdated indicates an application record was updated.
	EventTypeAppUpdated EventType = "app_updated"

	// EventTypeAppRemoved indicates an application record was deleted.
	EventTypeAppRemoved EventType = "app_removed"

	// EventTypeDeployStarted indicates a deploy call was issued.
	EventTypeDeployStarted EventType = "deploy_started"

	// EventTypeDeployCompleted indicates an instance was deployed and
	// recorded.
	EventTypeDeployCompleted EventType = "deploy_completed"

	// EventTypeDeployFailed indicates a deploy call failed.
	EventTypeDeployFailed EventType = "deploy_failed"

	// EventTypeDestroyStarted indicates a destroy call was issued.
	EventTypeDestroyStarted EventType = "destroy_started"

	// EventTypeDestroyCompleted indicates an instance was destroyed and
	// detached.
	EventTypeDestroyCompleted EventType = "destroy_completed"

	// EventTypeDestroyFailed indicates a destroy call failed.
	EventTypeDestroyFailed EventType = "destroy_failed"

	// EventTypeInstanceOrphaned indicates an instance was deployed but
	// recording it failed, leaving a resource the store does not know.
	EventTypeInstanceOrphaned EventType = "instance_orphaned"
)

// Event represents a timeline event in an application's lifecycle.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// AppID is the id of the application this event belongs to.
	AppID string `json:"app_id"`

	// Provider is the provider id involved, if applicable.
	Provider string `json:"provider,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`

	// Level is the log level (info, warning, error).
	Level string `json:"level"`
}
