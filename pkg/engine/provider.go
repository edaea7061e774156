package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openberth/openberth/pkg/mapper"
)

// Provider is the typed surface a deployment backend implements. C is the
// backend's own configuration type and R its opaque reference type; both
// are enforced by the compiler at adapter construction, then erased behind
// ProviderAdapter for the registry.
type Provider[C, R any] interface {
	// Deploy creates an instance of the application described by
	// payload on the backend configured by cfg.
	Deploy(ctx context.Context, cfg C, payload InstancePayload) (Instance[R], error)

	// GetInfo reports the current state of the instance identified by
	// ref.
	GetInfo(ctx context.Context, ref R) (Instance[R], error)

	// Destroy removes the instance identified by ref. Destroying an
	// instance the backend no longer knows is not an error.
	Destroy(ctx context.Context, ref R) error
}

// Instance is a typed deployment result: a provider-reported status plus
// the provider's own reference type.
type Instance[R any] struct {
	// Status is the provider-reported instance state.
	Status InstanceStatus `json:"status"`

	// Ref identifies the deployed resource to this provider.
	Ref R `json:"ref"`
}

// ProviderAdapter is the uniform, type-erased surface stored in the
// registry. Raw configuration and reference documents are validated and
// mapped into the bound provider's own types on every call, so the
// controller never learns a backend's concrete shapes.
type ProviderAdapter interface {
	// Deploy validates and maps rawConfig, then deploys payload.
	Deploy(ctx context.Context, rawConfig json.RawMessage, payload InstancePayload) (InstanceInfo, error)

	// GetInfo validates and maps rawRef, then reports instance state.
	GetInfo(ctx context.Context, rawRef json.RawMessage) (InstanceInfo, error)

	// Destroy validates and maps rawRef, then removes the instance.
	Destroy(ctx context.Context, rawRef json.RawMessage) error
}

// adapter binds one typed provider to the mappers that produce its config
// and reference types from raw JSON. It is the single point where the type
// parameters are discarded.
type adapter[C, R any] struct {
	id        string
	provider  Provider[C, R]
	cfgMapper mapper.Mapper[C]
	refMapper mapper.Mapper[R]
}

// NewAdapter wraps a typed provider in the uniform ProviderAdapter
// surface. cfgMapper validates raw provider configuration into C;
// refMapper revalidates persisted references into R, so refs round-trip
// through the store without backend code in the controller. id is used
// for error context only.
func NewAdapter[C, R any](id string, p Provider[C, R], cfgMapper mapper.Mapper[C], refMapper mapper.Mapper[R]) ProviderAdapter {
	return &adapter[C, R]{
		id:        id,
		provider:  p,
		cfgMapper: cfgMapper,
		refMapper: refMapper,
	}
}

// Deploy implements ProviderAdapter.
func (a *adapter[C, R]) Deploy(ctx context.Context, rawConfig json.RawMessage, payload InstancePayload) (InstanceInfo, error) {
	cfg, err := a.cfgMapper.ValidateAndMap(ctx, rawConfig)
	if err != nil {
		return InstanceInfo{}, err
	}

	inst, err := a.provider.Deploy(ctx, cfg, payload)
	if err != nil {
		return InstanceInfo{}, NewProviderCallError("deploy", a.id, err)
	}

	return a.erase(inst)
}

// GetInfo implements ProviderAdapter.
func (a *adapter[C, R]) GetInfo(ctx context.Context, rawRef json.RawMessage) (InstanceInfo, error) {
	ref, err := a.refMapper.ValidateAndMap(ctx, rawRef)
	if err != nil {
		return InstanceInfo{}, err
	}

	inst, err := a.provider.GetInfo(ctx, ref)
	if err != nil {
		return InstanceInfo{}, NewProviderCallError("getInfo", a.id, err)
	}

	return a.erase(inst)
}

// Destroy implements ProviderAdapter.
func (a *adapter[C, R]) Destroy(ctx context.Context, rawRef json.RawMessage) error {
	ref, err := a.refMapper.ValidateAndMap(ctx, rawRef)
	if err != nil {
		return err
	}

	if err := a.provider.Destroy(ctx, ref); err != nil {
		return NewProviderCallError("destroy", a.id, err)
	}

	return nil
}

// erase serializes a typed instance back into the uniform InstanceInfo.
func (a *adapter[C, R]) erase(inst Instance[R]) (InstanceInfo, error) {
	ref, err := json.Marshal(inst.Ref)
	if err != nil {
		return InstanceInfo{}, fmt.Errorf("failed to serialize provider reference: %w", err)
	}

	return InstanceInfo{Status: inst.Status, Ref: ref}, nil
}
