package engine_test

import (
	"context"
	"encoding/json"

	"github.com/openberth/openberth/pkg/engine"
)

// Example_lifecycle demonstrates how the core types compose together in a
// typical OpenBerth application lifecycle.
func Example_lifecycle() {
	// 1. Describe an application: a compose workload on an AWS target
	record := engine.ApplicationRecord{
		ID: "web",
		InstanceConfig: engine.VariableConfig{
			ID:     "compose",
			Config: json.RawMessage(`{"services":{"web":{"image":"nginx:1.27"}}}`),
		},
		ProviderConfig: engine.VariableConfig{
			ID:     "aws",
			Config: json.RawMessage(`{"region":"eu-west-1","instance_type":"t3.micro"}`),
		},
	}

	// 2. The store joins the record with its deployment state
	full := engine.ApplicationRecordFull{
		ApplicationRecord: record,
		ProviderName:      "aws",
		InstanceInfo: &engine.InstanceInfo{
			Status: engine.InstanceStatusStarting,
			Ref:    json.RawMessage(`{"instanceId":"i-123"}`),
		},
	}

	// 3. Presence of instance info is what Running means
	running := full.Running()

	// 4. Lifecycle transitions emit timeline events
	event := engine.Event{
		ID:       "evt-001",
		Type:     engine.EventTypeDeployCompleted,
		AppID:    record.ID,
		Provider: "aws",
		Message:  "Instance deployed",
		Level:    "info",
	}

	// 5. Handle errors with classification
	err := engine.NewAppRunningError(record.ID)
	if engine.IsConflict(err) {
		// Stop the application before starting it again
		_ = err
	}

	_, _, _ = full, running, event
}

// Example_errorHandling demonstrates error classification and handling.
func Example_errorHandling() {
	// Create different error types
	conflictErr := engine.NewAppRunningError("web").
		WithOperation("startApp")

	permanentErr := engine.NewInvalidProviderError("gcp").
		WithApp("web").
		WithOperation("startApp")

	// Check error classification
	mustStopFirst := engine.IsAppRunning(conflictErr) // true - instance already attached
	wiringMistake := engine.IsPermanent(permanentErr) // true - no adapter registered for the id
	canRetry := engine.IsTransient(permanentErr)      // false - retrying cannot help

	_, _, _ = mustStopFirst, wiringMistake, canRetry
}

// Example_registries demonstrates wiring-time registration and runtime
// resolution by plain string id.
func Example_registries() {
	providers := engine.NewProviderRegistry()
	instanceConfigs := engine.NewInstanceConfigRegistry()

	// Plug-ins register at startup; the registries are read-only after.
	// providers.Register("aws", awsec2.NewAdapter(...))
	// instanceConfigs.Register("compose", instanceconfig.NewComposeMapper())

	// The controller resolves both ids when an application starts.
	_, err := providers.Get("aws")
	if engine.IsInvalidProvider(err) {
		// Nothing registered under "aws" yet
		_ = err
	}

	_, _ = providers, instanceConfigs
}

// Example_controller demonstrates driving one application through a full
// start/stop cycle.
func Example_controller() {
	var (
		ctx   = context.Background()
		ctrl  *engine.Controller
		appID = "web"
	)

	if ctrl == nil {
		return // wiring elided; see NewController
	}

	app, err := ctrl.GetApp(ctx, appID)
	if err != nil {
		return
	}

	if err := ctrl.StartApp(ctx, app); err != nil {
		if engine.IsAppRunning(err) {
			// Already deployed: nothing to do
		}
		return
	}

	app, err = ctrl.GetApp(ctx, appID)
	if err != nil {
		return
	}
	_ = ctrl.StopApp(ctx, app)
}
