package telemetry

import (
	"context"
	"encoding/json"

	"github.com/openberth/openberth/pkg/engine"
)

// instrumentedAdapter decorates a provider adapter with spans, call
// counters, and deploy/destroy duration observations.
type instrumentedAdapter struct {
	tel  *Telemetry
	id   string
	next engine.ProviderAdapter
}

// InstrumentAdapter wraps a provider adapter so every call is recorded
// against providerID. A nil Telemetry returns next unchanged.
func InstrumentAdapter(tel *Telemetry, providerID string, next engine.ProviderAdapter) engine.ProviderAdapter {
	if tel == nil {
		return next
	}
	return &instrumentedAdapter{tel: tel, id: providerID, next: next}
}

func (a *instrumentedAdapter) Deploy(ctx context.Context, rawConfig json.RawMessage, payload engine.InstancePayload) (engine.InstanceInfo, error) {
	var info engine.InstanceInfo
	err := RecordProviderOperation(a.tel.WithContext(ctx), a.id, "deploy", func(ctx context.Context) error {
		var err error
		info, err = a.next.Deploy(ctx, rawConfig, payload)
		return err
	})
	return info, err
}

func (a *instrumentedAdapter) GetInfo(ctx context.Context, rawRef json.RawMessage) (engine.InstanceInfo, error) {
	var info engine.InstanceInfo
	err := RecordProviderOperation(a.tel.WithContext(ctx), a.id, "get_info", func(ctx context.Context) error {
		var err error
		info, err = a.next.GetInfo(ctx, rawRef)
		return err
	})
	return info, err
}

func (a *instrumentedAdapter) Destroy(ctx context.Context, rawRef json.RawMessage) error {
	return RecordProviderOperation(a.tel.WithContext(ctx), a.id, "destroy", func(ctx context.Context) error {
		return a.next.Destroy(ctx, rawRef)
	})
}

// instrumentedStore decorates a store with spans and per-operation
// duration observations.
type instrumentedStore struct {
	tel  *Telemetry
	next engine.Store
}

// InstrumentStore wraps a store so every call is recorded. A nil
// Telemetry returns next unchanged.
func InstrumentStore(tel *Telemetry, next engine.Store) engine.Store {
	if tel == nil {
		return next
	}
	return &instrumentedStore{tel: tel, next: next}
}

func (s *instrumentedStore) AddApp(ctx context.Context, record engine.ApplicationRecord) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "add_app", func(ctx context.Context) error {
		return s.next.AddApp(ctx, record)
	})
}

func (s *instrumentedStore) GetApp(ctx context.Context, id string) (*engine.ApplicationRecordFull, error) {
	var app *engine.ApplicationRecordFull
	err := RecordStoreOperation(s.tel.WithContext(ctx), "get_app", func(ctx context.Context) error {
		var err error
		app, err = s.next.GetApp(ctx, id)
		return err
	})
	return app, err
}

func (s *instrumentedStore) GetAllApps(ctx context.Context) ([]engine.ApplicationRecordFull, error) {
	var apps []engine.ApplicationRecordFull
	err := RecordStoreOperation(s.tel.WithContext(ctx), "get_all_apps", func(ctx context.Context) error {
		var err error
		apps, err = s.next.GetAllApps(ctx)
		return err
	})
	return apps, err
}

func (s *instrumentedStore) UpdateApp(ctx context.Context, id string, record engine.ApplicationRecord) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "update_app", func(ctx context.Context) error {
		return s.next.UpdateApp(ctx, id, record)
	})
}

func (s *instrumentedStore) RemoveApp(ctx context.Context, id string) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "remove_app", func(ctx context.Context) error {
		return s.next.RemoveApp(ctx, id)
	})
}

func (s *instrumentedStore) AddInstanceInfo(ctx context.Context, id string, info engine.InstanceInfo) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "add_instance_info", func(ctx context.Context) error {
		return s.next.AddInstanceInfo(ctx, id, info)
	})
}

func (s *instrumentedStore) RemoveInstanceInfo(ctx context.Context, id string) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "remove_instance_info", func(ctx context.Context) error {
		return s.next.RemoveInstanceInfo(ctx, id)
	})
}

func (s *instrumentedStore) HealthCheck(ctx context.Context) error {
	return RecordStoreOperation(s.tel.WithContext(ctx), "health_check", func(ctx context.Context) error {
		return s.next.HealthCheck(ctx)
	})
}
