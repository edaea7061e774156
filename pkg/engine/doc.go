// Package engine provides the core types and interfaces for the OpenBerth
// application lifecycle engine.
//
// # Overview
//
// OpenBerth is an application deployment controller: operators register
// applications whose deployment target and runtime payload are
// provider-specific, schema-validated configurations, then drive them
// through a start/stop lifecycle. The engine operates in three layers:
//
//  1. Registries - Resolve instance-config mappers and provider adapters
//     by plain string id (InstanceConfigRegistry, ProviderRegistry)
//  2. Adapters - Bridge raw JSON configuration into each backend's own
//     types and back (ProviderAdapter)
//  3. Controller - Enforce the Stopped/Running state machine against an
//     external store (Controller)
//
// # Core Domain Types
//
// The package defines the types that represent the lifecycle model:
//
//   - VariableConfig: A discriminated, lazily-validated configuration slot
//   - ApplicationRecord: A registered application's durable description
//   - ApplicationRecordFull: The record joined with its deployment state
//   - InstanceInfo: The status and opaque reference of a deployed instance
//   - InstancePayload: The uniform bootstrap payload handed to providers
//   - Event: Timeline events during lifecycle transitions
//
// # Provider Interface
//
// Deployment backends implement the typed Provider interface:
//
//	type Provider[C, R any] interface {
//	    Deploy(ctx context.Context, cfg C, payload InstancePayload) (Instance[R], error)
//	    GetInfo(ctx context.Context, ref R) (Instance[R], error)
//	    Destroy(ctx context.Context, ref R) error
//	}
//
// NewAdapter binds a provider to the mappers that validate its raw
// configuration and reference documents, then erases C and R behind the
// ProviderAdapter surface so the registry can hold heterogeneous backends
// in one collection. Type agreement is enforced by the compiler at
// construction and never checked again.
//
// # State Machine
//
// An application is Running exactly when instance info is attached to its
// record. StartApp moves Stopped to Running and StopApp moves Running to
// Stopped; both reject applications already in their target state with
// AppRunning or AppNotRunning errors before touching any backend. The
// controller performs no internal synchronization: the store's conditional
// AddInstanceInfo is what keeps two overlapping starts from both
// deploying.
//
// # Error Classification
//
// Errors are classified for retry logic in callers and plug-ins:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Conflict: State conflicts such as an already-running application
//   - Permanent: Non-recoverable errors such as an unknown provider id
//
// Use the error helper functions to classify and inspect errors:
//
//	if engine.IsAppRunning(err) {
//	    // Stop the application first
//	}
//
// # Example Usage
//
// Basic wiring and lifecycle for one application:
//
//	providers := engine.NewProviderRegistry()
//	_ = providers.Register("aws", awsAdapter)
//
//	instanceConfigs := engine.NewInstanceConfigRegistry()
//	_ = instanceConfigs.Register("compose", composeMapper)
//
//	ctrl := engine.NewController(store, providers, instanceConfigs, events, logger)
//
//	_ = ctrl.AddApp(ctx, record)
//	app, _ := ctrl.GetApp(ctx, record.ID)
//	_ = ctrl.StartApp(ctx, app)
//
//	app, _ = ctrl.GetApp(ctx, record.ID)
//	_ = ctrl.StopApp(ctx, app)
//
// # Thread Safety
//
// The registries are safe for concurrent use and read-only after wiring.
// Controller methods may run concurrently; transitions on the same
// application are serialized by the store, not the controller.
package engine
