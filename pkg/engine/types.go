package engine

import (
	"encoding/json"
)

// VariableConfig is a discriminated, lazily-typed configuration slot. ID
// selects which registered mapper or provider interprets Config; Config
// stays an untyped JSON tree until that component validates it.
type VariableConfig struct {
	// ID names the mapper or provider that understands Config.
	ID string `json:"id"`

	// Config is the raw, not-yet-validated configuration document.
	Config json.RawMessage `json:"config"`
}

// ApplicationRecord is the durable description of one deployable
// application: which instance-config mapper produces its bootstrap payload
// and which provider deploys it.
type ApplicationRecord struct {
	// ID uniquely identifies the application across the store.
	ID string `json:"id"`

	// InstanceConfig selects and parameterizes the instance-config
	// mapper producing the bootstrap payload.
	InstanceConfig VariableConfig `json:"instance_config"`

	// ProviderConfig selects and parameterizes the deployment provider.
	ProviderConfig VariableConfig `json:"provider_config"`
}

// ApplicationRecordFull is the read-side join of an ApplicationRecord with
// its current deployment state. It is computed by the store and never
// persisted directly.
type ApplicationRecordFull struct {
	ApplicationRecord

	// ProviderName is the id of the provider configured for this
	// application, when one is set.
	ProviderName string `json:"provider_name,omitempty"`

	// InstanceInfo describes the deployed instance. It is present if
	// and only if the application is running.
	InstanceInfo *InstanceInfo `json:"instance_info,omitempty"`
}

// Running reports whether the application currently has a deployed
// instance attached.
func (a *ApplicationRecordFull) Running() bool {
	return a.InstanceInfo != nil
}

// InstanceStatus is the provider-reported state of a deployed instance.
// It is observability data only: lifecycle transitions are gated on the
// presence or absence of InstanceInfo, never on this value.
type InstanceStatus string

const (
	// InstanceStatusStarting means the backend accepted the deployment
	// and the instance is coming up.
	InstanceStatusStarting InstanceStatus = "starting"

	// InstanceStatusRunning means the instance is up.
	InstanceStatusRunning InstanceStatus = "running"

	// InstanceStatusDestroying means teardown is in progress.
	InstanceStatusDestroying InstanceStatus = "destroying"

	// InstanceStatusDestroyed means the backend no longer has the
	// instance.
	InstanceStatusDestroyed InstanceStatus = "destroyed"

	// InstanceStatusErrored means the backend reported a failure state.
	InstanceStatusErrored InstanceStatus = "errored"
)

// IsValid returns true if the status is one of the defined values.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceStatusStarting, InstanceStatusRunning, InstanceStatusDestroying,
		InstanceStatusDestroyed, InstanceStatusErrored:
		return true
	}
	return false
}

// InstanceInfo describes one deployed instance of an application.
type InstanceInfo struct {
	// Status is the provider-reported instance state.
	Status InstanceStatus `json:"status"`

	// Ref is an opaque, provider-defined handle identifying the
	// deployed resource. Its shape is meaningful only to the provider
	// that produced it; it round-trips through the store as raw JSON.
	Ref json.RawMessage `json:"ref"`
}

// InstancePayload is the uniform, backend-agnostic bootstrap payload
// produced by instance-config mappers and consumed by provider deploys.
// Providers treat it as an opaque string (a compose document, a
// cloud-init document, a bootstrap script).
type InstancePayload string
