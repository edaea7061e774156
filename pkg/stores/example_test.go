package stores_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_AddApp demonstrates registering an application record.
func ExampleSQLiteStore_AddApp() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Register an application
	record := engine.ApplicationRecord{
		ID: "web-frontend",
		InstanceConfig: engine.VariableConfig{
			ID:     "compose",
			Config: json.RawMessage(`{"services":{"web":{"image":"nginx:1.25"}}}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "aws",
			Config: json.RawMessage(`{"region":"eu-west-1"}`),
		},
	}

	if err := store.AddApp(ctx, record); err != nil {
		log.Fatal(err)
	}

	// Retrieve the application
	app, err := store.GetApp(ctx, "web-frontend")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("App: %s, Provider: %s, Running: %v\n", app.ID, app.ProviderName, app.Running())
	// Output: App: web-frontend, Provider: aws, Running: false
}

// ExampleSQLiteStore_AddInstanceInfo demonstrates attaching instance info
// after a successful deployment.
func ExampleSQLiteStore_AddInstanceInfo() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Register the application first
	record := engine.ApplicationRecord{
		ID: "batch-worker",
		InstanceConfig: engine.VariableConfig{
			ID:     "cloud-init",
			Config: json.RawMessage(`{"packages":["docker.io"]}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "aws",
			Config: json.RawMessage(`{"region":"us-east-1"}`),
		},
	}
	_ = store.AddApp(ctx, record)

	// Attach instance info; a second attach for the same app would fail
	// with a conflict
	info := engine.InstanceInfo{
		Status: engine.InstanceStatusStarting,
		Ref:    json.RawMessage(`{"instanceId":"i-0abc123"}`),
	}

	if err := store.AddInstanceInfo(ctx, "batch-worker", info); err != nil {
		log.Fatal(err)
	}

	// The application now reads back as running
	app, err := store.GetApp(ctx, "batch-worker")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Running: %v, Status: %s\n", app.Running(), app.InstanceInfo.Status)
	// Output: Running: true, Status: starting
}

// ExampleSQLiteStore_RemoveApp demonstrates that removing an application
// also removes its attached instance info through the foreign key cascade.
func ExampleSQLiteStore_RemoveApp() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	record := engine.ApplicationRecord{
		ID: "cache-node",
		InstanceConfig: engine.VariableConfig{
			ID:     "compose",
			Config: json.RawMessage(`{"services":{"redis":{"image":"redis:7"}}}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "docker",
			Config: json.RawMessage(`{"host":"unix:///var/run/docker.sock"}`),
		},
	}
	_ = store.AddApp(ctx, record)
	_ = store.AddInstanceInfo(ctx, "cache-node", engine.InstanceInfo{
		Status: engine.InstanceStatusRunning,
		Ref:    json.RawMessage(`{"containerId":"deadbeef"}`),
	})

	// Remove the application record
	if err := store.RemoveApp(ctx, "cache-node"); err != nil {
		log.Fatal(err)
	}

	// Both the record and its instance info are gone
	_, err := store.GetApp(ctx, "cache-node")
	fmt.Printf("Not found: %v\n", engine.IsNotFound(err))
	// Output: Not found: true
}
