package dockerhost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
)

type fakeDockerClient struct {
	pullFunc    func(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	createFunc  func(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	startFunc   func(ctx context.Context, containerID string, options container.StartOptions) error
	inspectFunc func(ctx context.Context, containerID string) (container.InspectResponse, error)
	stopFunc    func(ctx context.Context, containerID string, options container.StopOptions) error
	removeFunc  func(ctx context.Context, containerID string, options container.RemoveOptions) error

	pullCalls    int
	createCalls  int
	startCalls   int
	inspectCalls int
	stopCalls    int
	removeCalls  int

	lastPullRef       string
	lastCreateConfig  *container.Config
	lastCreateHost    *container.HostConfig
	lastCreateName    string
	lastRemoveOptions container.RemoveOptions
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.pullCalls++
	f.lastPullRef = refStr
	if f.pullFunc != nil {
		return f.pullFunc(ctx, refStr, options)
	}
	return io.NopCloser(strings.NewReader(`{"status":"Pull complete"}`)), nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.createCalls++
	f.lastCreateConfig = config
	f.lastCreateHost = hostConfig
	f.lastCreateName = containerName
	if f.createFunc != nil {
		return f.createFunc(ctx, config, hostConfig, networkingConfig, platform, containerName)
	}
	return container.CreateResponse{ID: "c0ffee1234"}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.startCalls++
	if f.startFunc != nil {
		return f.startFunc(ctx, containerID, options)
	}
	return nil
}

func (f *fakeDockerClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	f.inspectCalls++
	if f.inspectFunc != nil {
		return f.inspectFunc(ctx, containerID)
	}
	return inspectResponse(containerID, "running", 0), nil
}

func (f *fakeDockerClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopCalls++
	if f.stopFunc != nil {
		return f.stopFunc(ctx, containerID, options)
	}
	return nil
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removeCalls++
	f.lastRemoveOptions = options
	if f.removeFunc != nil {
		return f.removeFunc(ctx, containerID, options)
	}
	return nil
}

func inspectResponse(id, status string, exitCode int) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID: id,
			State: &container.State{
				Status:   status,
				ExitCode: exitCode,
			},
		},
	}
}

func notFoundErr(id string) error {
	return errors.New("Error response from daemon: No such container: " + id)
}

func TestProvider_Deploy(t *testing.T) {
	client := &fakeDockerClient{}
	p := New(client)

	cfg := Config{
		Image: "nginx:1.25",
		Name:  "web",
		Env:   map[string]string{"PORT": "8080"},
		Ports: []string{"8080:80"},
	}
	payload := engine.InstancePayload("name: web\nservices:\n  web:\n    image: nginx:1.25\n")

	inst, err := p.Deploy(context.Background(), cfg, payload)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if inst.Status != engine.InstanceStatusStarting {
		t.Errorf("expected status starting, got %s", inst.Status)
	}
	if inst.Ref.ContainerID != "c0ffee1234" {
		t.Errorf("expected container ID c0ffee1234, got %s", inst.Ref.ContainerID)
	}
	if client.pullCalls != 0 {
		t.Errorf("expected no pull without pull: true, got %d", client.pullCalls)
	}
	if client.createCalls != 1 || client.startCalls != 1 {
		t.Errorf("expected 1 create and 1 start, got %d and %d", client.createCalls, client.startCalls)
	}
	if client.lastCreateName != "web" {
		t.Errorf("expected container name web, got %s", client.lastCreateName)
	}

	spec := client.lastCreateConfig
	if spec.Image != "nginx:1.25" {
		t.Errorf("expected image nginx:1.25, got %s", spec.Image)
	}
	if spec.Labels[LabelManaged] != "true" {
		t.Errorf("expected %s=true label, got %q", LabelManaged, spec.Labels[LabelManaged])
	}
	if spec.Labels[LabelApp] != "web" {
		t.Errorf("expected %s=web label, got %q", LabelApp, spec.Labels[LabelApp])
	}

	wantEnv := bootstrapEnvVar + "=" + string(payload)
	foundBootstrap, foundPort := false, false
	for _, e := range spec.Env {
		if e == wantEnv {
			foundBootstrap = true
		}
		if e == "PORT=8080" {
			foundPort = true
		}
	}
	if !foundBootstrap {
		t.Errorf("expected env to carry the bootstrap payload, got %v", spec.Env)
	}
	if !foundPort {
		t.Errorf("expected env to carry PORT=8080, got %v", spec.Env)
	}

	if _, ok := spec.ExposedPorts[nat.Port("80/tcp")]; !ok {
		t.Errorf("expected 80/tcp exposed, got %v", spec.ExposedPorts)
	}
	bindings := client.lastCreateHost.PortBindings[nat.Port("80/tcp")]
	if len(bindings) != 1 || bindings[0].HostPort != "8080" {
		t.Errorf("expected 80/tcp bound to host port 8080, got %v", bindings)
	}
}

func TestProvider_Deploy_PullsWhenAsked(t *testing.T) {
	client := &fakeDockerClient{}
	p := New(client)

	cfg := Config{Image: "redis:7", Pull: true}
	if _, err := p.Deploy(context.Background(), cfg, "payload"); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if client.pullCalls != 1 {
		t.Errorf("expected 1 pull, got %d", client.pullCalls)
	}
	if client.lastPullRef != "redis:7" {
		t.Errorf("expected pull of redis:7, got %s", client.lastPullRef)
	}
}

func TestProvider_Deploy_PullFailureStopsDeploy(t *testing.T) {
	client := &fakeDockerClient{
		pullFunc: func(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
			return nil, errors.New("pull access denied")
		},
	}
	p := New(client)

	_, err := p.Deploy(context.Background(), Config{Image: "private/app:1", Pull: true}, "payload")
	if err == nil {
		t.Fatal("expected error when pull fails")
	}
	if client.createCalls != 0 {
		t.Errorf("expected no create after failed pull, got %d", client.createCalls)
	}
}

func TestProvider_Deploy_GeneratesName(t *testing.T) {
	client := &fakeDockerClient{}
	p := New(client)

	if _, err := p.Deploy(context.Background(), Config{Image: "nginx:1.25"}, "payload"); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if !strings.HasPrefix(client.lastCreateName, "berth-") {
		t.Errorf("expected generated name with berth- prefix, got %s", client.lastCreateName)
	}
	if got := client.lastCreateConfig.Labels[LabelApp]; got != client.lastCreateName {
		t.Errorf("expected %s label to match container name %s, got %s", LabelApp, client.lastCreateName, got)
	}
}

func TestProvider_Deploy_CreateFailure(t *testing.T) {
	client := &fakeDockerClient{
		createFunc: func(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
			return container.CreateResponse{}, errors.New("conflict: name already in use")
		},
	}
	p := New(client)

	_, err := p.Deploy(context.Background(), Config{Image: "nginx:1.25", Name: "web"}, "payload")
	if err == nil {
		t.Fatal("expected error when create fails")
	}
	if client.startCalls != 0 {
		t.Errorf("expected no start after failed create, got %d", client.startCalls)
	}
}

func TestProvider_Deploy_NetworkMode(t *testing.T) {
	client := &fakeDockerClient{}
	p := New(client)

	cfg := Config{Image: "nginx:1.25", Network: "backbone"}
	if _, err := p.Deploy(context.Background(), cfg, "payload"); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if got := client.lastCreateHost.NetworkMode; got != container.NetworkMode("backbone") {
		t.Errorf("expected network mode backbone, got %s", got)
	}
}

func TestProvider_GetInfo_StateMapping(t *testing.T) {
	tests := []struct {
		status   string
		exitCode int
		want     engine.InstanceStatus
	}{
		{"created", 0, engine.InstanceStatusStarting},
		{"restarting", 0, engine.InstanceStatusStarting},
		{"running", 0, engine.InstanceStatusRunning},
		{"paused", 0, engine.InstanceStatusRunning},
		{"removing", 0, engine.InstanceStatusDestroying},
		{"exited", 0, engine.InstanceStatusDestroyed},
		{"exited", 137, engine.InstanceStatusErrored},
		{"dead", 0, engine.InstanceStatusErrored},
	}

	for _, tt := range tests {
		client := &fakeDockerClient{
			inspectFunc: func(ctx context.Context, containerID string) (container.InspectResponse, error) {
				return inspectResponse(containerID, tt.status, tt.exitCode), nil
			},
		}
		p := New(client)

		inst, err := p.GetInfo(context.Background(), Ref{ContainerID: "c0ffee1234"})
		if err != nil {
			t.Fatalf("GetInfo failed for state %s: %v", tt.status, err)
		}
		if inst.Status != tt.want {
			t.Errorf("state %s exit %d: expected %s, got %s", tt.status, tt.exitCode, tt.want, inst.Status)
		}
	}
}

func TestProvider_GetInfo_MissingContainer(t *testing.T) {
	client := &fakeDockerClient{
		inspectFunc: func(ctx context.Context, containerID string) (container.InspectResponse, error) {
			return container.InspectResponse{}, notFoundErr(containerID)
		},
	}
	p := New(client)

	inst, err := p.GetInfo(context.Background(), Ref{ContainerID: "gone"})
	if err != nil {
		t.Fatalf("expected missing container to map to destroyed, got error: %v", err)
	}
	if inst.Status != engine.InstanceStatusDestroyed {
		t.Errorf("expected status destroyed, got %s", inst.Status)
	}
}

func TestProvider_Destroy(t *testing.T) {
	client := &fakeDockerClient{}
	p := New(client)

	if err := p.Destroy(context.Background(), Ref{ContainerID: "c0ffee1234"}); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if client.stopCalls != 1 || client.removeCalls != 1 {
		t.Errorf("expected 1 stop and 1 remove, got %d and %d", client.stopCalls, client.removeCalls)
	}
	if !client.lastRemoveOptions.Force {
		t.Error("expected forced removal")
	}
}

func TestProvider_Destroy_ToleratesMissingContainer(t *testing.T) {
	client := &fakeDockerClient{
		stopFunc: func(ctx context.Context, containerID string, options container.StopOptions) error {
			return notFoundErr(containerID)
		},
		removeFunc: func(ctx context.Context, containerID string, options container.RemoveOptions) error {
			return notFoundErr(containerID)
		},
	}
	p := New(client)

	if err := p.Destroy(context.Background(), Ref{ContainerID: "gone"}); err != nil {
		t.Errorf("expected destroy of missing container to succeed, got %v", err)
	}
}

func TestProvider_Destroy_StopFailure(t *testing.T) {
	client := &fakeDockerClient{
		stopFunc: func(ctx context.Context, containerID string, options container.StopOptions) error {
			return errors.New("daemon unavailable")
		},
	}
	p := New(client)

	if err := p.Destroy(context.Background(), Ref{ContainerID: "c0ffee1234"}); err == nil {
		t.Fatal("expected error when stop fails")
	}
	if client.removeCalls != 0 {
		t.Errorf("expected no remove after failed stop, got %d", client.removeCalls)
	}
}

func TestConfigMapper(t *testing.T) {
	m := ConfigMapper()

	t.Run("ValidConfig", func(t *testing.T) {
		raw := json.RawMessage(`{"image": "nginx:1.25", "ports": ["8080:80"], "pull": true}`)
		cfg, err := m.ValidateAndMap(context.Background(), raw)
		if err != nil {
			t.Fatalf("ValidateAndMap failed: %v", err)
		}
		if cfg.Image != "nginx:1.25" || !cfg.Pull {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("MissingImage", func(t *testing.T) {
		_, err := m.ValidateAndMap(context.Background(), json.RawMessage(`{"name": "web"}`))
		if !mapper.IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := m.ValidateAndMap(context.Background(), json.RawMessage(`{"image": "nginx:1.25", "volumes": ["/data"]}`))
		if !mapper.IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("BadPortSpec", func(t *testing.T) {
		_, err := m.ValidateAndMap(context.Background(), json.RawMessage(`{"image": "nginx:1.25", "ports": ["not-a-port"]}`))
		if !mapper.IsTransformError(err) {
			t.Errorf("expected transform error, got %v", err)
		}
	})
}

func TestNewAdapter_RoundTrip(t *testing.T) {
	client := &fakeDockerClient{}
	adapter := NewAdapter(New(client))

	rawCfg := json.RawMessage(`{"image": "nginx:1.25", "name": "web"}`)
	info, err := adapter.Deploy(context.Background(), rawCfg, "payload")
	if err != nil {
		t.Fatalf("adapter Deploy failed: %v", err)
	}

	var ref Ref
	if err := json.Unmarshal(info.Ref, &ref); err != nil {
		t.Fatalf("failed to decode erased ref: %v", err)
	}
	if ref.ContainerID != "c0ffee1234" {
		t.Errorf("expected erased ref to carry container ID, got %+v", ref)
	}

	state, err := adapter.GetInfo(context.Background(), info.Ref)
	if err != nil {
		t.Fatalf("adapter GetInfo failed: %v", err)
	}
	if state.Status != engine.InstanceStatusRunning {
		t.Errorf("expected running, got %s", state.Status)
	}

	if err := adapter.Destroy(context.Background(), info.Ref); err != nil {
		t.Fatalf("adapter Destroy failed: %v", err)
	}

	_, err = adapter.GetInfo(context.Background(), json.RawMessage(`{}`))
	if !mapper.IsValidationError(err) {
		t.Errorf("expected validation error for empty ref, got %v", err)
	}
	if client.inspectCalls != 1 {
		t.Errorf("expected rejected ref to make no backend call, got %d inspects", client.inspectCalls)
	}
}
