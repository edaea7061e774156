package wasmhost

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/openberth/openberth/pkg/engine"
)

const (
	// DefaultCallTimeout bounds each provider call into the module.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMemoryLimitPages caps module memory at 256 pages (16MB).
	DefaultMemoryLimitPages = 256
)

// HostConfig tunes the sandbox a provider module runs in.
type HostConfig struct {
	// Timeout bounds each provider call. Zero means DefaultCallTimeout.
	Timeout time.Duration

	// MemoryLimitPages caps the module's linear memory in 64KB pages.
	// Zero means DefaultMemoryLimitPages.
	MemoryLimitPages uint32
}

// Host owns one instantiated provider module and its runtime.
type Host struct {
	// manifest is the parsed provider manifest.
	manifest *Manifest

	// runtime is the wazero runtime.
	runtime wazero.Runtime

	// module is the instantiated provider module.
	module api.Module

	// bridge adapts the module's exports to engine.ProviderAdapter.
	bridge *Bridge
}

// NewHost instantiates a provider module inside its own wazero runtime
// with WASI and the env host module available, then binds the bridge.
func NewHost(ctx context.Context, manifest *Manifest, wasmModule []byte, hostConfig *HostConfig) (*Host, error) {
	if hostConfig == nil {
		hostConfig = &HostConfig{}
	}

	timeout := hostConfig.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	memoryLimitPages := hostConfig.MemoryLimitPages
	if memoryLimitPages == 0 {
		memoryLimitPages = DefaultMemoryLimitPages
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	if err := instantiateEnvModule(ctx, runtime, manifest.Raw.Key()); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	module, err := runtime.Instantiate(ctx, wasmModule)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate provider module: %w", err)
	}

	bridge, err := NewBridge(manifest.Raw.Name, module, timeout)
	if err != nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, err
	}

	return &Host{
		manifest: manifest,
		runtime:  runtime,
		module:   module,
		bridge:   bridge,
	}, nil
}

// instantiateEnvModule registers the host functions a provider module may
// import. Modules log through the host so their output lands in the
// controller's structured log with the provider identity attached.
func instantiateEnvModule(ctx context.Context, runtime wazero.Runtime, key string) error {
	logger := log.With().Str("provider", key).Logger()

	builder := runtime.NewHostModuleBuilder("env")

	// log(level u32, msg_ptr u32, msg_len u32)
	// Levels: 0 debug, 1 info, 2 warn, anything else error.
	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, level, msgPtr, msgLen uint32) {
			msg, ok := mod.Memory().Read(msgPtr, msgLen)
			if !ok {
				return
			}

			switch level {
			case 0:
				logger.Debug().Msg(string(msg))
			case 1:
				logger.Info().Msg(string(msg))
			case 2:
				logger.Warn().Msg(string(msg))
			default:
				logger.Error().Msg(string(msg))
			}
		}).
		Export("log")

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate env host module: %w", err)
	}

	return nil
}

// Manifest returns the manifest the host was built from.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Adapter returns the provider surface backed by the module.
func (h *Host) Adapter() engine.ProviderAdapter {
	return h.bridge
}

// Close releases the module and its runtime.
func (h *Host) Close(ctx context.Context) error {
	if h.module != nil {
		if err := h.module.Close(ctx); err != nil {
			return fmt.Errorf("failed to close provider module: %w", err)
		}
	}

	if h.runtime != nil {
		if err := h.runtime.Close(ctx); err != nil {
			return fmt.Errorf("failed to close runtime: %w", err)
		}
	}

	return nil
}
