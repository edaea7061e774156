package stores

import (
	"database/sql"
	"encoding/json"

	"github.com/openberth/openberth/pkg/engine"
)

// applicationRow is the scan target for application queries left-joined
// with their optional instance info.
type applicationRow struct {
	ID               string
	InstanceConfigID string
	InstanceConfig   []byte
	ProviderConfigID string
	ProviderConfig   []byte

	// Nullable: absent when no instance is attached.
	InstanceStatus sql.NullString
	InstanceRef    []byte
}

// toFull converts a scanned row into the engine's read model. Instance
// info is present exactly when the joined status column is non-null.
func (r *applicationRow) toFull() *engine.ApplicationRecordFull {
	full := &engine.ApplicationRecordFull{
		ApplicationRecord: engine.ApplicationRecord{
			ID: r.ID,
			InstanceConfig: engine.VariableConfig{
				ID:     r.InstanceConfigID,
				Config: json.RawMessage(r.InstanceConfig),
			},
			ProviderConfig: engine.VariableConfig{
				ID:     r.ProviderConfigID,
				Config: json.RawMessage(r.ProviderConfig),
			},
		},
		ProviderName: r.ProviderConfigID,
	}

	if r.InstanceStatus.Valid {
		full.InstanceInfo = &engine.InstanceInfo{
			Status: engine.InstanceStatus(r.InstanceStatus.String),
			Ref:    json.RawMessage(r.InstanceRef),
		}
	}

	return full
}
