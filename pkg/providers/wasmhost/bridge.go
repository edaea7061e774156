package wasmhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/openberth/openberth/pkg/engine"
)

// Wire ABI between the host and a provider module. Every exported provider
// function takes (input_ptr u32, input_len u32) pointing at a JSON request
// in linear memory and returns a packed u64 of (output_ptr << 32) |
// output_len pointing at a JSON response the module allocated with its own
// malloc. The host frees the output after reading it.
//
// Requests:
//
//	provider_deploy    {"config": <raw config>, "payload": "<bootstrap>"}
//	provider_get_info  {"ref": <raw ref>}
//	provider_destroy   {"ref": <raw ref>}
//
// Responses:
//
//	{"instance": {"status": "...", "ref": {...}}}  on success
//	{"error": "..."}                               on failure
//
// provider_destroy replies with an empty object on success.

type deployRequest struct {
	Config  json.RawMessage `json:"config"`
	Payload string          `json:"payload"`
}

type refRequest struct {
	Ref json.RawMessage `json:"ref"`
}

type callResponse struct {
	Instance *wireInstance `json:"instance,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type wireInstance struct {
	Status engine.InstanceStatus `json:"status"`
	Ref    json.RawMessage       `json:"ref"`
}

// Bridge exposes one instantiated provider module as an
// engine.ProviderAdapter. The module validates the config and ref
// documents it is handed against its declared schemas, so no mapper sits
// in front of it.
type Bridge struct {
	// id is the provider name, used for error context.
	id string

	// module is the instantiated provider module.
	module api.Module

	// memory is the module's linear memory.
	memory api.Memory

	// malloc and free are the module's exported allocator.
	malloc api.Function
	free   api.Function

	// deploy, getInfo, and destroy are the exported provider functions.
	deploy  api.Function
	getInfo api.Function
	destroy api.Function

	// timeout bounds each provider call.
	timeout time.Duration
}

var _ engine.ProviderAdapter = (*Bridge)(nil)

// NewBridge wraps an instantiated module, requiring the full provider
// export surface up front so a misbuilt plug-in fails at load, not at
// first deploy.
func NewBridge(id string, module api.Module, timeout time.Duration) (*Bridge, error) {
	bridge := &Bridge{
		id:      id,
		module:  module,
		timeout: timeout,
	}

	bridge.memory = module.Memory()
	if bridge.memory == nil {
		return nil, fmt.Errorf("provider module does not export memory")
	}

	for _, export := range []struct {
		name string
		fn   *api.Function
	}{
		{"malloc", &bridge.malloc},
		{"free", &bridge.free},
		{"provider_deploy", &bridge.deploy},
		{"provider_get_info", &bridge.getInfo},
		{"provider_destroy", &bridge.destroy},
	} {
		f := module.ExportedFunction(export.name)
		if f == nil {
			return nil, fmt.Errorf("provider module does not export %s", export.name)
		}
		*export.fn = f
	}

	return bridge, nil
}

// Deploy implements engine.ProviderAdapter by calling the module's
// provider_deploy export.
func (b *Bridge) Deploy(ctx context.Context, rawConfig json.RawMessage, payload engine.InstancePayload) (engine.InstanceInfo, error) {
	input, err := json.Marshal(deployRequest{Config: rawConfig, Payload: string(payload)})
	if err != nil {
		return engine.InstanceInfo{}, fmt.Errorf("failed to marshal deploy request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	output, err := b.call(ctx, b.deploy, input)
	if err != nil {
		return engine.InstanceInfo{}, engine.NewProviderCallError("deploy", b.id, err)
	}

	info, err := decodeInstanceResponse(output)
	if err != nil {
		return engine.InstanceInfo{}, engine.NewProviderCallError("deploy", b.id, err)
	}
	return info, nil
}

// GetInfo implements engine.ProviderAdapter by calling the module's
// provider_get_info export.
func (b *Bridge) GetInfo(ctx context.Context, rawRef json.RawMessage) (engine.InstanceInfo, error) {
	input, err := json.Marshal(refRequest{Ref: rawRef})
	if err != nil {
		return engine.InstanceInfo{}, fmt.Errorf("failed to marshal ref request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	output, err := b.call(ctx, b.getInfo, input)
	if err != nil {
		return engine.InstanceInfo{}, engine.NewProviderCallError("getInfo", b.id, err)
	}

	info, err := decodeInstanceResponse(output)
	if err != nil {
		return engine.InstanceInfo{}, engine.NewProviderCallError("getInfo", b.id, err)
	}
	return info, nil
}

// Destroy implements engine.ProviderAdapter by calling the module's
// provider_destroy export.
func (b *Bridge) Destroy(ctx context.Context, rawRef json.RawMessage) error {
	input, err := json.Marshal(refRequest{Ref: rawRef})
	if err != nil {
		return fmt.Errorf("failed to marshal ref request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	output, err := b.call(ctx, b.destroy, input)
	if err != nil {
		return engine.NewProviderCallError("destroy", b.id, err)
	}

	if err := decodeAckResponse(output); err != nil {
		return engine.NewProviderCallError("destroy", b.id, err)
	}
	return nil
}

// decodeInstanceResponse turns a module response into an InstanceInfo,
// rejecting statuses outside the controller's vocabulary so a misbehaving
// plug-in cannot smuggle arbitrary states into the store.
func decodeInstanceResponse(data []byte) (engine.InstanceInfo, error) {
	var resp callResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return engine.InstanceInfo{}, fmt.Errorf("failed to unmarshal provider response: %w", err)
	}

	if resp.Error != "" {
		return engine.InstanceInfo{}, errors.New(resp.Error)
	}
	if resp.Instance == nil {
		return engine.InstanceInfo{}, fmt.Errorf("provider returned no instance")
	}
	if !resp.Instance.Status.IsValid() {
		return engine.InstanceInfo{}, fmt.Errorf("provider returned unknown status %q", resp.Instance.Status)
	}
	if len(resp.Instance.Ref) == 0 {
		return engine.InstanceInfo{}, fmt.Errorf("provider returned instance without ref")
	}

	return engine.InstanceInfo{
		Status: resp.Instance.Status,
		Ref:    resp.Instance.Ref,
	}, nil
}

// decodeAckResponse checks a response that carries no instance.
func decodeAckResponse(data []byte) error {
	var resp callResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal provider response: %w", err)
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// call runs one exported function against the module: input is copied into
// linear memory, the packed (ptr, len) result is read back out, and both
// buffers are returned to the module's allocator.
func (b *Bridge) call(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := b.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, err
		}
		defer b.deallocate(ctx, ptr)

		inputPtr = ptr
		inputLen = uint32(len(input))

		if !b.memory.Write(inputPtr, input) {
			return nil, fmt.Errorf("failed to write input to module memory")
		}
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("provider call returned no result")
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)

	if outputLen == 0 {
		return []byte("{}"), nil
	}

	view, ok := b.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from module memory")
	}

	// The view aliases linear memory; copy before handing the buffer
	// back to the module's allocator.
	output := make([]byte, len(view))
	copy(output, view)

	b.deallocate(ctx, outputPtr)

	return output, nil
}

func (b *Bridge) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no result")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return ptr, nil
}

func (b *Bridge) deallocate(ctx context.Context, ptr uint32) {
	_, _ = b.free.Call(ctx, uint64(ptr))
}
