package commands

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/openberth/openberth/pkg/engine"
)

// A fresh database has to accept records immediately: openRuntime owns
// running the store migrations, no out-of-band schema step exists.
func TestOpenRuntime_FreshStoreIsMigrated(t *testing.T) {
	storePath = filepath.Join(t.TempDir(), "berth.db")

	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		t.Fatalf("openRuntime failed: %v", err)
	}
	defer rt.Close(ctx)

	record := engine.ApplicationRecord{
		ID: "web",
		InstanceConfig: engine.VariableConfig{
			ID:     "compose",
			Config: json.RawMessage(`{"services": {"web": {"image": "nginx:1.25"}}}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "ssh",
			Config: json.RawMessage(`{"host": "10.0.0.1", "user": "berth", "password": "s"}`),
		},
	}
	if err := rt.controller.AddApp(ctx, record); err != nil {
		t.Fatalf("AddApp on a fresh store failed: %v", err)
	}

	app, err := rt.controller.GetApp(ctx, "web")
	if err != nil {
		t.Fatalf("GetApp failed: %v", err)
	}
	if app.ID != "web" {
		t.Errorf("Expected app id 'web', got %q", app.ID)
	}
	if app.Running() {
		t.Error("Expected a freshly registered app to be stopped")
	}
}

func TestNewInstanceConfigRegistry(t *testing.T) {
	registry := newInstanceConfigRegistry()

	for _, id := range []string{"compose", "cloud-init"} {
		if _, err := registry.Get(id); err != nil {
			t.Errorf("Expected mapper %q to be registered, got %v", id, err)
		}
	}
}
