package stores

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/openberth/openberth/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// testRecord builds a minimal application record for tests
func testRecord(id string) engine.ApplicationRecord {
	return engine.ApplicationRecord{
		ID: id,
		InstanceConfig: engine.VariableConfig{
			ID:     "compose",
			Config: json.RawMessage(`{"services":{"web":{"image":"nginx:1.25"}}}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "aws",
			Config: json.RawMessage(`{"region":"eu-west-1"}`),
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"applications", "instance_info"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestAppCRUD tests application record CRUD operations
func TestAppCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Create
	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	// Read
	retrieved, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get app: %v", err)
	}

	if retrieved.ID != record.ID {
		t.Errorf("expected ID %s, got %s", record.ID, retrieved.ID)
	}
	if retrieved.InstanceConfig.ID != record.InstanceConfig.ID {
		t.Errorf("expected instance config ID %s, got %s", record.InstanceConfig.ID, retrieved.InstanceConfig.ID)
	}
	if string(retrieved.InstanceConfig.Config) != string(record.InstanceConfig.Config) {
		t.Errorf("expected instance config %s, got %s", record.InstanceConfig.Config, retrieved.InstanceConfig.Config)
	}
	if retrieved.ProviderName != record.ProviderConfig.ID {
		t.Errorf("expected provider name %s, got %s", record.ProviderConfig.ID, retrieved.ProviderName)
	}
	if retrieved.Running() {
		t.Error("expected freshly added app to not be running")
	}

	// Update
	updated := record
	updated.ProviderConfig = engine.VariableConfig{
		ID:     "docker",
		Config: json.RawMessage(`{"host":"unix:///var/run/docker.sock"}`),
	}
	if err := store.UpdateApp(ctx, record.ID, updated); err != nil {
		t.Fatalf("failed to update app: %v", err)
	}

	afterUpdate, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get updated app: %v", err)
	}
	if afterUpdate.ProviderConfig.ID != "docker" {
		t.Errorf("expected provider config ID docker, got %s", afterUpdate.ProviderConfig.ID)
	}

	// List
	apps, err := store.GetAllApps(ctx)
	if err != nil {
		t.Fatalf("failed to list apps: %v", err)
	}
	if len(apps) != 1 {
		t.Errorf("expected 1 app, got %d", len(apps))
	}

	// Delete
	if err := store.RemoveApp(ctx, record.ID); err != nil {
		t.Fatalf("failed to remove app: %v", err)
	}

	_, err = store.GetApp(ctx, record.ID)
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found error after removal, got %v", err)
	}
}

// TestAddApp_Duplicate tests that registering the same id twice is rejected
func TestAddApp_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	err := store.AddApp(ctx, record)
	if !engine.IsAlreadyExists(err) {
		t.Errorf("expected already exists error, got %v", err)
	}
}

// TestGetApp_NotFound tests retrieval of an unknown id
func TestGetApp_NotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.GetApp(context.Background(), "no-such-app")
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

// TestUpdateApp_NotFound tests updating an unknown id
func TestUpdateApp_NotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	err := store.UpdateApp(context.Background(), "no-such-app", testRecord("no-such-app"))
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

// TestRemoveApp_NotFound tests removing an unknown id
func TestRemoveApp_NotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	err := store.RemoveApp(context.Background(), "no-such-app")
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

// TestGetAllApps tests listing order and the empty-store case
func TestGetAllApps(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Empty store yields an empty slice, not nil
	apps, err := store.GetAllApps(ctx)
	if err != nil {
		t.Fatalf("failed to list apps: %v", err)
	}
	if apps == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(apps) != 0 {
		t.Errorf("expected 0 apps, got %d", len(apps))
	}

	// Insert out of order
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := store.AddApp(ctx, testRecord(id)); err != nil {
			t.Fatalf("failed to add app %s: %v", id, err)
		}
	}

	apps, err = store.GetAllApps(ctx)
	if err != nil {
		t.Fatalf("failed to list apps: %v", err)
	}
	if len(apps) != 3 {
		t.Fatalf("expected 3 apps, got %d", len(apps))
	}

	// Listed in id order
	expected := []string{"alpha", "bravo", "charlie"}
	for i, id := range expected {
		if apps[i].ID != id {
			t.Errorf("expected app %d to be %s, got %s", i, id, apps[i].ID)
		}
	}
}

// TestInstanceInfoLifecycle tests attaching and detaching instance info
func TestInstanceInfoLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	// Attach
	info := engine.InstanceInfo{
		Status: engine.InstanceStatusStarting,
		Ref:    json.RawMessage(`{"instanceId":"i-123"}`),
	}
	if err := store.AddInstanceInfo(ctx, record.ID, info); err != nil {
		t.Fatalf("failed to add instance info: %v", err)
	}

	running, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get app: %v", err)
	}
	if !running.Running() {
		t.Fatal("expected app to be running after attaching instance info")
	}
	if running.InstanceInfo.Status != engine.InstanceStatusStarting {
		t.Errorf("expected status %s, got %s", engine.InstanceStatusStarting, running.InstanceInfo.Status)
	}
	if string(running.InstanceInfo.Ref) != `{"instanceId":"i-123"}` {
		t.Errorf("expected ref to round-trip, got %s", running.InstanceInfo.Ref)
	}

	// Detach
	if err := store.RemoveInstanceInfo(ctx, record.ID); err != nil {
		t.Fatalf("failed to remove instance info: %v", err)
	}

	stopped, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get app: %v", err)
	}
	if stopped.Running() {
		t.Error("expected app to not be running after detaching instance info")
	}
	if stopped.InstanceInfo != nil {
		t.Errorf("expected nil instance info, got %+v", stopped.InstanceInfo)
	}
}

// TestAddInstanceInfo_AlreadyAttached tests the compare-and-set conflict path
func TestAddInstanceInfo_AlreadyAttached(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	winner := engine.InstanceInfo{
		Status: engine.InstanceStatusStarting,
		Ref:    json.RawMessage(`{"instanceId":"i-111"}`),
	}
	if err := store.AddInstanceInfo(ctx, record.ID, winner); err != nil {
		t.Fatalf("failed to add instance info: %v", err)
	}

	// The second attach loses the race
	loser := engine.InstanceInfo{
		Status: engine.InstanceStatusStarting,
		Ref:    json.RawMessage(`{"instanceId":"i-222"}`),
	}
	err := store.AddInstanceInfo(ctx, record.ID, loser)
	if !engine.IsAppRunning(err) {
		t.Errorf("expected app running conflict, got %v", err)
	}

	// The winner's info is untouched
	app, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get app: %v", err)
	}
	if string(app.InstanceInfo.Ref) != `{"instanceId":"i-111"}` {
		t.Errorf("expected winner ref to be preserved, got %s", app.InstanceInfo.Ref)
	}
}

// TestAddInstanceInfo_UnknownApp tests attaching info to a missing record
func TestAddInstanceInfo_UnknownApp(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	info := engine.InstanceInfo{
		Status: engine.InstanceStatusStarting,
		Ref:    json.RawMessage(`{"instanceId":"i-123"}`),
	}
	err := store.AddInstanceInfo(context.Background(), "no-such-app", info)
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

// TestRemoveInstanceInfo_NotAttached tests detaching when nothing is attached
func TestRemoveInstanceInfo_NotAttached(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	err := store.RemoveInstanceInfo(ctx, record.ID)
	if !engine.IsAppNotRunning(err) {
		t.Errorf("expected app not running conflict, got %v", err)
	}
}

// TestUpdateApp_KeepsInstanceInfo tests that config updates leave attached
// instance info alone
func TestUpdateApp_KeepsInstanceInfo(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	info := engine.InstanceInfo{
		Status: engine.InstanceStatusRunning,
		Ref:    json.RawMessage(`{"instanceId":"i-123"}`),
	}
	if err := store.AddInstanceInfo(ctx, record.ID, info); err != nil {
		t.Fatalf("failed to add instance info: %v", err)
	}

	updated := record
	updated.InstanceConfig.Config = json.RawMessage(`{"services":{"web":{"image":"nginx:1.27"}}}`)
	if err := store.UpdateApp(ctx, record.ID, updated); err != nil {
		t.Fatalf("failed to update app: %v", err)
	}

	app, err := store.GetApp(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get app: %v", err)
	}
	if !app.Running() {
		t.Error("expected app to still be running after config update")
	}
	if string(app.InstanceInfo.Ref) != `{"instanceId":"i-123"}` {
		t.Errorf("expected instance ref to survive update, got %s", app.InstanceInfo.Ref)
	}
	if string(app.InstanceConfig.Config) != `{"services":{"web":{"image":"nginx:1.27"}}}` {
		t.Errorf("expected updated instance config, got %s", app.InstanceConfig.Config)
	}
}

// TestCascadeDelete tests foreign key cascading from applications to
// instance_info
func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := testRecord("web-frontend")
	if err := store.AddApp(ctx, record); err != nil {
		t.Fatalf("failed to add app: %v", err)
	}

	info := engine.InstanceInfo{
		Status: engine.InstanceStatusRunning,
		Ref:    json.RawMessage(`{"instanceId":"i-123"}`),
	}
	if err := store.AddInstanceInfo(ctx, record.ID, info); err != nil {
		t.Fatalf("failed to add instance info: %v", err)
	}

	// Delete the application (should cascade to instance_info)
	if err := store.RemoveApp(ctx, record.ID); err != nil {
		t.Fatalf("failed to remove app: %v", err)
	}

	var count int
	err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instance_info WHERE app_id = ?", record.ID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count instance info rows: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 instance info rows after cascade delete, got %d", count)
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
