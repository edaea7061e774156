package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller drives registered applications through their lifecycle.
// Stopped records are deployed through type-erased provider adapters and
// Running records are destroyed through the same adapters. The controller
// holds no persistent state and performs no internal synchronization:
// concurrent transitions on one application are serialized by the store's
// conditional instance attachment.
type Controller struct {
	// store persists application records and attached instance info.
	store Store

	// providers resolves deployment backends by provider id.
	providers *ProviderRegistry

	// instanceConfigs resolves bootstrap payload mappers by
	// instance-config id.
	instanceConfigs *InstanceConfigRegistry

	// events publishes lifecycle events, if wired.
	events EventPublisher

	// logger logs lifecycle operations.
	logger zerolog.Logger
}

// NewController creates a lifecycle controller. events may be nil, in
// which case no events are published.
func NewController(
	store Store,
	providers *ProviderRegistry,
	instanceConfigs *InstanceConfigRegistry,
	events EventPublisher,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		store:           store,
		providers:       providers,
		instanceConfigs: instanceConfigs,
		events:          events,
		logger:          logger.With().Str("component", "lifecycle-controller").Logger(),
	}
}

// AddApp registers a new application in the Stopped state. The
// configuration slots are stored as-is: their ids need not resolve to a
// registered mapper or provider until the application is started.
func (c *Controller) AddApp(ctx context.Context, record ApplicationRecord) error {
	if record.ID == "" {
		return NewValidationError("application id is required")
	}

	if err := c.store.AddApp(ctx, record); err != nil {
		return err
	}

	c.logger.Info().
		Str("app_id", record.ID).
		Str("instance_config", record.InstanceConfig.ID).
		Str("provider", record.ProviderConfig.ID).
		Msg("application registered")
	c.publishEvent(ctx, record.ID, record.ProviderConfig.ID,
		EventTypeAppAdded, "Application registered", "info")

	return nil
}

// GetApp retrieves the full record stored under id.
func (c *Controller) GetApp(ctx context.Context, id string) (*ApplicationRecordFull, error) {
	if id == "" {
		return nil, NewValidationError("application id is required")
	}

	return c.store.GetApp(ctx, id)
}

// ListApps retrieves the full records of every registered application.
func (c *Controller) ListApps(ctx context.Context) ([]ApplicationRecordFull, error) {
	return c.store.GetAllApps(ctx)
}

// UpdateApp overwrites the configuration of the record stored under id.
// Attached instance info is untouched: a running application keeps its
// deployed instance and picks up the new configuration on the next start.
func (c *Controller) UpdateApp(ctx context.Context, id string, record ApplicationRecord) error {
	if id == "" {
		return NewValidationError("application id is required")
	}

	if err := c.store.UpdateApp(ctx, id, record); err != nil {
		return err
	}

	c.logger.Info().Str("app_id", id).Msg("application updated")
	c.publishEvent(ctx, id, record.ProviderConfig.ID,
		EventTypeAppUpdated, "Application configuration updated", "info")

	return nil
}

// StartApp deploys the application and records the resulting instance,
// moving it from Stopped to Running. The running guard fires before any
// mapper or provider is resolved, so a deployed application never reaches
// its backend twice. Cancellation during deploy is a deploy failure:
// nothing is persisted. A deploy that succeeds but cannot be recorded is
// surfaced as an error and flagged as an orphaned instance; the backend
// resource is not destroyed automatically.
func (c *Controller) StartApp(ctx context.Context, app *ApplicationRecordFull) error {
	if app == nil {
		return NewValidationError("application is nil")
	}
	if app.Running() {
		return NewAppRunningError(app.ID)
	}

	payloadMapper, err := c.instanceConfigs.Get(app.InstanceConfig.ID)
	if err != nil {
		return err
	}

	adapter, err := c.providers.Get(app.ProviderConfig.ID)
	if err != nil {
		return err
	}

	payload, err := payloadMapper.ValidateAndMap(ctx, app.InstanceConfig.Config)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("app_id", app.ID).
		Str("instance_config", app.InstanceConfig.ID).
		Str("provider", app.ProviderConfig.ID).
		Msg("deploying application")
	c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
		EventTypeDeployStarted, "Deploy started", "info")

	info, err := adapter.Deploy(ctx, app.ProviderConfig.Config, payload)
	if err != nil {
		c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
			EventTypeDeployFailed, fmt.Sprintf("Deploy failed: %v", err), "error")
		return err
	}

	if err := c.store.AddInstanceInfo(ctx, app.ID, info); err != nil {
		// The backend resource exists but the store does not know it.
		c.logger.Warn().
			Str("app_id", app.ID).
			Str("provider", app.ProviderConfig.ID).
			RawJSON("instance_ref", info.Ref).
			Err(err).
			Msg("instance deployed but not recorded, manual cleanup may be required")
		c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
			EventTypeInstanceOrphaned, "Instance deployed but not recorded", "warning")
		return err
	}

	c.logger.Info().
		Str("app_id", app.ID).
		Str("provider", app.ProviderConfig.ID).
		Str("status", string(info.Status)).
		Msg("application deployed")
	c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
		EventTypeDeployCompleted, "Instance deployed", "info")

	return nil
}

// StopApp destroys the deployed instance and detaches its record, moving
// the application from Running to Stopped. A failed detach leaves the
// record claiming a destroyed instance; rerunning stop converges because
// destroying a missing instance is not an error.
func (c *Controller) StopApp(ctx context.Context, app *ApplicationRecordFull) error {
	if app == nil {
		return NewValidationError("application is nil")
	}
	if !app.Running() {
		return NewAppNotRunningError(app.ID)
	}

	adapter, err := c.providers.Get(app.ProviderConfig.ID)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("app_id", app.ID).
		Str("provider", app.ProviderConfig.ID).
		Msg("destroying application instance")
	c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
		EventTypeDestroyStarted, "Destroy started", "info")

	if err := adapter.Destroy(ctx, app.InstanceInfo.Ref); err != nil {
		c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
			EventTypeDestroyFailed, fmt.Sprintf("Destroy failed: %v", err), "error")
		return err
	}

	if err := c.store.RemoveInstanceInfo(ctx, app.ID); err != nil {
		return err
	}

	c.logger.Info().Str("app_id", app.ID).Msg("application stopped")
	c.publishEvent(ctx, app.ID, app.ProviderConfig.ID,
		EventTypeDestroyCompleted, "Instance destroyed", "info")

	return nil
}

// RemoveApp deletes the application record. A running application is
// rejected unless force is set, in which case it is stopped first.
// Deletion happens only after a successful stop: a failed stop propagates
// its error and leaves the record in place.
func (c *Controller) RemoveApp(ctx context.Context, id string, force bool) error {
	if id == "" {
		return NewValidationError("application id is required")
	}

	app, err := c.store.GetApp(ctx, id)
	if err != nil {
		return err
	}

	if app.Running() {
		if !force {
			return NewAppRunningError(id)
		}
		if err := c.StopApp(ctx, app); err != nil {
			return err
		}
	}

	if err := c.store.RemoveApp(ctx, id); err != nil {
		return err
	}

	c.logger.Info().Str("app_id", id).Bool("force", force).Msg("application removed")
	c.publishEvent(ctx, id, app.ProviderConfig.ID,
		EventTypeAppRemoved, "Application removed", "info")

	return nil
}

// RefreshInstanceInfo asks the application's provider for the current
// state of its deployed instance. The stored snapshot is not rewritten:
// presence of instance info, not its status, gates lifecycle transitions.
func (c *Controller) RefreshInstanceInfo(ctx context.Context, id string) (*InstanceInfo, error) {
	if id == "" {
		return nil, NewValidationError("application id is required")
	}

	app, err := c.store.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.Running() {
		return nil, NewAppNotRunningError(id)
	}

	adapter, err := c.providers.Get(app.ProviderConfig.ID)
	if err != nil {
		return nil, err
	}

	info, err := adapter.GetInfo(ctx, app.InstanceInfo.Ref)
	if err != nil {
		return nil, err
	}

	return &info, nil
}

// publishEvent emits a lifecycle event when a publisher is wired.
func (c *Controller) publishEvent(
	ctx context.Context,
	appID, provider string,
	eventType EventType,
	message, level string,
) {
	if c.events == nil {
		return
	}

	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		AppID:     appID,
		Provider:  provider,
		Message:   message,
		Level:     level,
	}

	// Publish asynchronously to avoid blocking lifecycle operations.
	go func() {
		if err := c.events.Publish(ctx, event); err != nil {
			c.logger.Debug().
				Err(err).
				Str("event_type", string(eventType)).
				Msg("failed to publish event")
		}
	}()
}
