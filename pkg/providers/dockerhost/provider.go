package dockerhost

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
)

// ID is the provider identifier applications reference in their
// provider config.
const ID = "docker"

const (
	// LabelManaged marks containers created by this provider so that
	// operators can tell them apart from hand-started ones.
	LabelManaged = "io.openberth.managed"

	// LabelApp records the container name the application was
	// deployed under.
	LabelApp = "io.openberth.app"
)

// bootstrapEnvVar carries the rendered instance payload into the
// container.
const bootstrapEnvVar = "BOOTSTRAP_CONFIG"

// stopTimeoutSeconds is how long Destroy lets the container shut down
// before the daemon kills it.
const stopTimeoutSeconds = 10

// Config selects the image to run and how to run it.
type Config struct {
	Image   string            `json:"image" validate:"required"`
	Name    string            `json:"name,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Ports   []string          `json:"ports,omitempty"`
	Pull    bool              `json:"pull,omitempty"`
	Network string            `json:"network,omitempty"`
}

// Ref identifies a deployed container.
type Ref struct {
	ContainerID string `json:"containerId"`
}

// Provider runs applications as containers on a Docker Engine.
type Provider struct {
	client ContainerClient
}

// New returns a provider backed by the given Docker client.
func New(client ContainerClient) *Provider {
	return &Provider{client: client}
}

// ConfigMapper validates and parses provider configs. Port mappings
// are parsed up front so a bad spec fails at registration time rather
// than at deploy time.
func ConfigMapper() mapper.Mapper[Config] {
	return mapper.MustNew(configSchema, func(_ context.Context, cfg Config) (Config, error) {
		if _, _, err := parsePorts(cfg.Ports); err != nil {
			return Config{}, &mapper.TransformError{
				Message: fmt.Sprintf("invalid port mapping: %v", err),
			}
		}
		return cfg, nil
	})
}

// RefMapper validates and parses instance refs.
func RefMapper() mapper.Mapper[Ref] {
	return mapper.MustNew(refSchema, func(_ context.Context, ref Ref) (Ref, error) {
		return ref, nil
	})
}

// NewAdapter wraps the provider in the registry's type-erased surface.
func NewAdapter(p *Provider) engine.ProviderAdapter {
	return engine.NewAdapter[Config, Ref](ID, p, ConfigMapper(), RefMapper())
}

// Deploy creates and starts a container for the application. The
// payload is handed to the container through the BOOTSTRAP_CONFIG
// environment variable.
func (p *Provider) Deploy(ctx context.Context, cfg Config, payload engine.InstancePayload) (engine.Instance[Ref], error) {
	if cfg.Pull {
		if err := p.pullImage(ctx, cfg.Image); err != nil {
			return engine.Instance[Ref]{}, err
		}
	}

	name := cfg.Name
	if name == "" {
		name = "berth-" + uuid.New().String()
	}

	exposed, bindings, err := parsePorts(cfg.Ports)
	if err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to parse port mappings: %w", err)
	}

	containerCfg := &container.Config{
		Image:        cfg.Image,
		Env:          buildEnv(cfg.Env, payload),
		Labels:       buildLabels(cfg.Labels, name),
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
	}
	if cfg.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(cfg.Network)
	}

	created, err := p.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to create container %q: %w", name, err)
	}

	if err := p.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to start container %s: %w", created.ID, err)
	}

	return engine.Instance[Ref]{
		Status: engine.InstanceStatusStarting,
		Ref:    Ref{ContainerID: created.ID},
	}, nil
}

// GetInfo reports the container's current state. A container the
// daemon no longer knows about is reported as destroyed.
func (p *Provider) GetInfo(ctx context.Context, ref Ref) (engine.Instance[Ref], error) {
	inspect, err := p.client.ContainerInspect(ctx, ref.ContainerID)
	if err != nil {
		if isNotFound(err) {
			return engine.Instance[Ref]{Status: engine.InstanceStatusDestroyed, Ref: ref}, nil
		}
		return engine.Instance[Ref]{}, fmt.Errorf("failed to inspect container %s: %w", ref.ContainerID, err)
	}

	var state *container.State
	if inspect.ContainerJSONBase != nil {
		state = inspect.State
	}
	return engine.Instance[Ref]{Status: mapState(state), Ref: ref}, nil
}

// Destroy stops and removes the container. A container that is already
// gone is not an error.
func (p *Provider) Destroy(ctx context.Context, ref Ref) error {
	timeout := stopTimeoutSeconds
	err := p.client.ContainerStop(ctx, ref.ContainerID, container.StopOptions{Timeout: &timeout})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to stop container %s: %w", ref.ContainerID, err)
	}

	err = p.client.ContainerRemove(ctx, ref.ContainerID, container.RemoveOptions{Force: true})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", ref.ContainerID, err)
	}
	return nil
}

// pullImage pulls the image and drains the progress stream. The pull
// is only complete once the stream has been consumed.
func (p *Provider) pullImage(ctx context.Context, ref string) error {
	rd, err := p.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	defer rd.Close()

	if _, err := io.Copy(io.Discard, rd); err != nil {
		return fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	return nil
}

// buildEnv renders the env map in Docker's KEY=VALUE form and appends
// the bootstrap payload. The slice is sorted so container specs are
// deterministic.
func buildEnv(env map[string]string, payload engine.InstancePayload) []string {
	out := make([]string, 0, len(env)+1)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	out = append(out, bootstrapEnvVar+"="+string(payload))
	sort.Strings(out)
	return out
}

// buildLabels merges user labels with the provider's management
// labels. Management labels win on collision.
func buildLabels(labels map[string]string, name string) map[string]string {
	out := make(map[string]string, len(labels)+2)
	for k, v := range labels {
		out[k] = v
	}
	out[LabelManaged] = "true"
	out[LabelApp] = name
	return out
}

// parsePorts parses "host:container" port specs into the exposure and
// binding maps the daemon expects.
func parsePorts(ports []string) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	return nat.ParsePortSpecs(ports)
}

// mapState translates Docker container states to instance statuses.
// An exited container with a zero exit code finished on its own and
// counts as destroyed; a non-zero exit is an error.
func mapState(state *container.State) engine.InstanceStatus {
	if state == nil {
		return engine.InstanceStatusErrored
	}
	switch state.Status {
	case "created", "restarting":
		return engine.InstanceStatusStarting
	case "running", "paused":
		return engine.InstanceStatusRunning
	case "removing":
		return engine.InstanceStatusDestroying
	case "exited":
		if state.ExitCode == 0 {
			return engine.InstanceStatusDestroyed
		}
		return engine.InstanceStatusErrored
	default:
		return engine.InstanceStatusErrored
	}
}

// isNotFound reports whether the daemon rejected the container ID as
// unknown.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such container")
}

const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"image": {
			"type": "string",
			"minLength": 1,
			"description": "Image reference to run, e.g. nginx:1.25"
		},
		"name": {
			"type": "string",
			"description": "Container name; generated when omitted"
		},
		"env": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"labels": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"ports": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"description": "Port specs in host:container form"
		},
		"pull": {
			"type": "boolean",
			"description": "Pull the image before creating the container"
		},
		"network": {
			"type": "string",
			"description": "Network mode for the container"
		}
	},
	"required": ["image"],
	"additionalProperties": false
}`

const refSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"containerId": {
			"type": "string",
			"minLength": 1
		}
	},
	"required": ["containerId"],
	"additionalProperties": false
}`
