package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/instanceconfig"
	"github.com/openberth/openberth/pkg/policy"
	"github.com/openberth/openberth/pkg/providers/awsec2"
	"github.com/openberth/openberth/pkg/providers/dockerhost"
	"github.com/openberth/openberth/pkg/providers/sshhost"
	"github.com/openberth/openberth/pkg/providers/wasmhost"
	"github.com/openberth/openberth/pkg/stores"
	"github.com/openberth/openberth/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

// runtime bundles the wired engine a command operates against.
type runtime struct {
	store      *stores.SQLiteStore
	providers  *engine.ProviderRegistry
	mappers    *engine.InstanceConfigRegistry
	policies   *policy.Engine
	telemetry  *telemetry.Telemetry
	controller *engine.Controller
	wasm       *wasmhost.Registry
}

// openRuntime opens the store and wires the registries, policy engine,
// telemetry and controller. Providers whose backend client cannot be
// constructed are skipped with a warning so the CLI stays usable
// without, say, AWS credentials configured.
func openRuntime(ctx context.Context) (*runtime, error) {
	tel, err := telemetry.NewTelemetry(telemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		log.Warn().Err(err).Msg("Failed to start metrics server")
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: storePath})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	rt := &runtime{
		store:     store,
		providers: newProviderRegistry(ctx, tel),
		mappers:   newInstanceConfigRegistry(),
		telemetry: tel,
	}

	if dir := os.Getenv("BERTH_WASM_DIR"); dir != "" {
		rt.wasm = wasmhost.NewRegistry(dir, nil)
		if err := rt.wasm.ScanDirectory(ctx, dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to scan WASM provider directory")
		}
		for _, m := range rt.wasm.List() {
			adapter, err := rt.wasm.Get(ctx, m.Name, m.Version)
			if err != nil {
				log.Warn().Err(err).Str("provider", m.Name).Msg("Failed to load WASM provider")
				continue
			}
			if err := rt.providers.Register(m.Name, telemetry.InstrumentAdapter(tel, m.Name, adapter)); err != nil {
				log.Warn().Err(err).Str("provider", m.Name).Msg("Failed to register WASM provider")
			}
		}
	}

	rt.policies, err = policy.NewEngine(log.Logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if paths := os.Getenv("BERTH_POLICY_PATHS"); paths != "" {
		if err := rt.policies.LoadPolicies(ctx, strings.Split(paths, ":")); err != nil {
			log.Warn().Err(err).Msg("Failed to load policies")
		}
	}
	if allowed := os.Getenv("BERTH_ALLOWED_PROVIDERS"); allowed != "" {
		rt.policies.SetAllowedProviders(strings.Split(allowed, ","))
	}

	rt.controller = engine.NewController(
		telemetry.InstrumentStore(tel, store),
		rt.providers, rt.mappers, tel.Events, log.Logger)

	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) {
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
	if rt.wasm != nil {
		if err := rt.wasm.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close WASM registry")
		}
	}
	if err := rt.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

// telemetryConfig builds the telemetry configuration from the
// environment. Metrics and tracing stay off unless their endpoints are
// set; the event bus is always on.
func telemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if addr := os.Getenv("BERTH_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = addr
	}
	if endpoint := os.Getenv("BERTH_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = endpoint
	}

	return cfg
}

// newProviderRegistry registers the built-in providers, each wrapped
// with call instrumentation. The SSH host provider has no client to
// construct and is always available; the AWS and Docker providers are
// skipped when their clients cannot be built.
func newProviderRegistry(ctx context.Context, tel *telemetry.Telemetry) *engine.ProviderRegistry {
	registry := engine.NewProviderRegistry()

	register := func(id string, adapter engine.ProviderAdapter) {
		_ = registry.Register(id, telemetry.InstrumentAdapter(tel, id, adapter))
	}

	register("ssh", sshhost.NewAdapter(sshhost.New()))

	if client, err := dockerhost.NewDefaultClient(); err != nil {
		log.Warn().Err(err).Msg("Docker provider unavailable")
	} else {
		register("docker", dockerhost.NewAdapter(dockerhost.New(client)))
	}

	if client, err := awsec2.NewDefaultClient(ctx); err != nil {
		log.Warn().Err(err).Msg("AWS EC2 provider unavailable")
	} else {
		register("aws", awsec2.NewAdapter(awsec2.New(client)))
	}

	return registry
}

func newInstanceConfigRegistry() *engine.InstanceConfigRegistry {
	registry := engine.NewInstanceConfigRegistry()
	_ = registry.Register("compose", instanceconfig.NewComposeMapper())
	_ = registry.Register("cloud-init", instanceconfig.NewCloudInitMapper())
	return registry
}
