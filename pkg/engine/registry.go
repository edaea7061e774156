package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openberth/openberth/pkg/mapper"
)

// ProviderRegistry holds the type-erased provider adapters keyed by
// provider id. It is populated at startup and read-mostly afterwards;
// heterogeneous backends coexist because each adapter already hides its
// concrete config and reference types.
type ProviderRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		adapters: make(map[string]ProviderAdapter),
	}
}

// Register adds an adapter under the given id. Registering a taken id is
// a wiring mistake and fails.
func (r *ProviderRegistry) Register(id string, adapter ProviderAdapter) error {
	if id == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if adapter == nil {
		return fmt.Errorf("provider adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider %q is already registered", id)
	}

	r.adapters[id] = adapter
	return nil
}

// Get resolves the adapter registered under id.
func (r *ProviderRegistry) Get(id string) (ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[id]
	if !exists {
		return nil, NewInvalidProviderError(id)
	}
	return adapter, nil
}

// IDs returns the registered provider ids in sorted order.
func (r *ProviderRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InstanceConfigRegistry holds the mappers that turn raw workload JSON
// into the uniform bootstrap payload, keyed by instance-config id. Like
// the provider registry it is wiring-time configuration.
type InstanceConfigRegistry struct {
	mu      sync.RWMutex
	mappers map[string]mapper.Mapper[InstancePayload]
}

// NewInstanceConfigRegistry creates an empty instance-config registry.
func NewInstanceConfigRegistry() *InstanceConfigRegistry {
	return &InstanceConfigRegistry{
		mappers: make(map[string]mapper.Mapper[InstancePayload]),
	}
}

// Register adds a mapper under the given id. Registering a taken id is a
// wiring mistake and fails.
func (r *InstanceConfigRegistry) Register(id string, m mapper.Mapper[InstancePayload]) error {
	if id == "" {
		return fmt.Errorf("instance-config id must not be empty")
	}
	if m == nil {
		return fmt.Errorf("instance-config mapper must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mappers[id]; exists {
		return fmt.Errorf("instance-config %q is already registered", id)
	}

	r.mappers[id] = m
	return nil
}

// Get resolves the mapper registered under id.
func (r *InstanceConfigRegistry) Get(id string) (mapper.Mapper[InstancePayload], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.mappers[id]
	if !exists {
		return nil, NewInvalidInstanceConfigError(id)
	}
	return m, nil
}

// IDs returns the registered instance-config ids in sorted order.
func (r *InstanceConfigRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.mappers))
	for id := range r.mappers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
