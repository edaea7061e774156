package engine

import (
	"context"
)

// Store is the persistence boundary the controller depends on. The
// controller owns no persistent state and performs no synchronization of
// its own, so implementations must make AddInstanceInfo conditional: the
// call attaches instance info only when none is currently attached and
// fails with a conflict otherwise. That check is what keeps two
// overlapping startApp calls from both deploying.
type Store interface {
	// AddApp inserts a new application record. A taken id fails with
	// an already-exists error.
	AddApp(ctx context.Context, record ApplicationRecord) error

	// GetApp retrieves the full record for id, or a not-found error.
	GetApp(ctx context.Context, id string) (*ApplicationRecordFull, error)

	// GetAllApps retrieves the full records of every stored
	// application.
	GetAllApps(ctx context.Context) ([]ApplicationRecordFull, error)

	// UpdateApp overwrites the configuration fields of the record
	// stored under id. Attached instance info is not touched.
	UpdateApp(ctx context.Context, id string, record ApplicationRecord) error

	// RemoveApp deletes the record stored under id.
	RemoveApp(ctx context.Context, id string) error

	// AddInstanceInfo attaches instance info to the record stored
	// under id, failing with a conflict when info is already attached.
	AddInstanceInfo(ctx context.Context, id string, info InstanceInfo) error

	// RemoveInstanceInfo detaches the instance info of the record
	// stored under id, failing with a conflict when none is attached.
	RemoveInstanceInfo(ctx context.Context, id string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// EventPublisher publishes lifecycle events to subscribers. The controller
// treats events as advisory: publish failures never fail an operation.
type EventPublisher interface {
	// Publish publishes an event.
	Publish(ctx context.Context, event *Event) error

	// Subscribe subscribes to events matching a filter.
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(ctx context.Context, subscriptionID string) error
}

// EventFilter represents criteria for filtering events.
type EventFilter struct {
	// AppID filters events by application id.
	AppID string `json:"app_id,omitempty"`

	// Types filters events by type.
	Types []EventType `json:"types,omitempty"`

	// MinLevel filters events by minimum log level.
	MinLevel string `json:"min_level,omitempty"`
}
