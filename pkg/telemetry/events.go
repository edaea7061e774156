package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openberth/openberth/pkg/engine"
)

// Bus is an in-process implementation of engine.EventPublisher. Every
// subscription owns a buffered channel; a subscriber that stops draining
// loses events rather than blocking lifecycle operations.
type Bus struct {
	config EventsConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool
}

type subscription struct {
	id     string
	filter engine.EventFilter
	ch     chan engine.Event
}

// NewBus creates a new event bus with the given configuration.
func NewBus(cfg EventsConfig) *Bus {
	return &Bus{
		config:        cfg,
		subscriptions: make(map[string]*subscription),
	}
}

// Publish delivers an event to every matching subscription. A full
// subscription buffer drops the event for that subscriber only.
func (b *Bus) Publish(ctx context.Context, event *engine.Event) error {
	if !b.config.Enabled || event == nil {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscriptions {
		if !matchesFilter(*event, sub.filter) {
			continue
		}
		select {
		case sub.ch <- *event:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}

	return nil
}

// Subscribe registers a subscription for events matching filter and
// returns its delivery channel. The channel closes when the subscription
// is removed or the bus shuts down.
func (b *Bus) Subscribe(_ context.Context, filter engine.EventFilter) (<-chan engine.Event, error) {
	if !b.config.Enabled {
		return nil, fmt.Errorf("event publishing is disabled")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	size := b.config.BufferSize
	if size <= 0 {
		size = 1
	}

	sub := &subscription{
		id:     uuid.New().String(),
		filter: filter,
		ch:     make(chan engine.Event, size),
	}
	b.subscriptions[sub.id] = sub

	return sub.ch, nil
}

// Unsubscribe removes the subscription with the given id and closes its
// channel.
func (b *Bus) Unsubscribe(_ context.Context, subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscriptions[subscriptionID]
	if !ok {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}

	delete(b.subscriptions, subscriptionID)
	close(sub.ch)

	return nil
}

// SubscriptionIDs returns the ids of all active subscriptions.
func (b *Bus) SubscriptionIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subscriptions))
	for id := range b.subscriptions {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts the bus down, closing every subscription channel. Publish
// calls after Close fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subscriptions {
		delete(b.subscriptions, id)
		close(sub.ch)
	}
}

// matchesFilter reports whether an event passes a subscription filter.
// Zero-valued filter fields match everything.
func matchesFilter(event engine.Event, filter engine.EventFilter) bool {
	if filter.AppID != "" && event.AppID != filter.AppID {
		return false
	}

	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.MinLevel != "" && levelRank(event.Level) < levelRank(filter.MinLevel) {
		return false
	}

	return true
}

// levelRank orders event levels for MinLevel filtering.
func levelRank(level string) int {
	switch level {
	case "warning":
		return 1
	case "error":
		return 2
	default:
		return 0
	}
}
