package sshhost

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
	"github.com/openberth/openberth/pkg/providers/retry"
	sshtransport "github.com/openberth/openberth/pkg/transports/ssh"
)

// ID is the provider identifier applications reference in their
// provider config.
const ID = "ssh"

// DefaultWorkdir is where unit directories live when the config does
// not name one.
const DefaultWorkdir = "/var/lib/openberth"

// Config selects the target host and how to authenticate against it.
// Exactly one of PrivateKey and Password must be set.
type Config struct {
	Host       string `json:"host" validate:"required"`
	Port       int    `json:"port,omitempty"`
	User       string `json:"user" validate:"required"`
	PrivateKey string `json:"private_key,omitempty"`
	Password   string `json:"password,omitempty"`
	Workdir    string `json:"workdir,omitempty"`
}

// Ref identifies a deployed unit: which host it lives on, how to reach
// it, and where the unit directory is. Refs carry locators only, never
// credentials; status probes and teardown authenticate with the
// controller's own SSH identity.
type Ref struct {
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
	User    string `json:"user"`
	Workdir string `json:"workdir"`
	Unit    string `json:"unit"`
}

// DialFunc builds a transport for the host a config points at.
// Injectable so tests run against a fake transport.
type DialFunc func(cfg Config) (sshtransport.Transport, error)

// Provider runs applications on remote hosts over SSH.
type Provider struct {
	dial   DialFunc
	policy retry.Policy
}

// New returns a provider that dials real SSH connections.
func New() *Provider {
	return NewWithDialer(defaultDial)
}

// NewWithDialer returns a provider using a custom transport factory.
func NewWithDialer(dial DialFunc) *Provider {
	policy := retry.DefaultPolicy()
	policy.Retryable = sshtransport.IsTemporary
	return &Provider{dial: dial, policy: policy}
}

// defaultDial maps a provider config onto the SSH transport config.
// Without explicit credentials the transport falls back to the
// controller's default keys, which is how ref-only probes authenticate.
func defaultDial(cfg Config) (sshtransport.Transport, error) {
	tc := sshtransport.DefaultConfig(cfg.Host, cfg.User)
	if cfg.Port != 0 {
		tc.Port = cfg.Port
	}
	switch {
	case cfg.PrivateKey != "":
		tc.AuthMethod = sshtransport.AuthMethodKey
		tc.PrivateKey = []byte(cfg.PrivateKey)
	case cfg.Password != "":
		tc.AuthMethod = sshtransport.AuthMethodPassword
		tc.Password = cfg.Password
	}
	// Managed hosts are registered by config, not by known_hosts
	// entries.
	tc.StrictHostKeyChecking = false
	return sshtransport.NewClient(tc)
}

// ConfigMapper validates and parses provider configs, applying the
// port and workdir defaults and the credential exclusivity rule.
func ConfigMapper() mapper.Mapper[Config] {
	return mapper.MustNew(configSchema, func(_ context.Context, cfg Config) (Config, error) {
		if cfg.PrivateKey == "" && cfg.Password == "" {
			return Config{}, &mapper.TransformError{
				Message: "either private_key or password is required",
			}
		}
		if cfg.PrivateKey != "" && cfg.Password != "" {
			return Config{}, &mapper.TransformError{
				Message: "private_key and password are mutually exclusive",
			}
		}
		if cfg.Port == 0 {
			cfg.Port = 22
		}
		if cfg.Workdir == "" {
			cfg.Workdir = DefaultWorkdir
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

// Deploy uploads the payload into a fresh unit directory and launches
// it with sh in the background. Only the connect is retried; the launch
// itself runs once so a flaky link cannot start two copies.
func (p *Provider) Deploy(ctx context.Context, cfg Config, payload engine.InstancePayload) (engine.Instance[Ref], error) {
	t, err := p.dial(cfg)
	if err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to build transport: %w", err)
	}

	if err := p.connect(ctx, t); err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to connect to %s: %w", cfg.Host, err)
	}
	defer t.Disconnect()

	unit := "unit-" + uuid.New().String()
	unitDir := path.Join(cfg.Workdir, unit)

	if _, stderr, err := t.Execute(ctx, fmt.Sprintf("mkdir -p %q", unitDir)); err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to create unit directory: %s: %w", stderr, err)
	}

	if err := t.Upload(ctx, []byte(payload), path.Join(unitDir, "bootstrap"), 0600); err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to upload bootstrap: %w", err)
	}

	if _, stderr, err := t.Execute(ctx, startCommand(unitDir)); err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to launch bootstrap: %s: %w", stderr, err)
	}

	return engine.Instance[Ref]{
		Status: engine.InstanceStatusStarting,
		Ref: Ref{
			Host:    cfg.Host,
			Port:    cfg.Port,
			User:    cfg.User,
			Workdir: cfg.Workdir,
			Unit:    unit,
		},
	}, nil
}

// GetInfo probes the unit directory. A removed directory means the
// unit was destroyed; a clean exit marker means it finished; a live
// pid means it is running.
func (p *Provider) GetInfo(ctx context.Context, ref Ref) (engine.Instance[Ref], error) {
	var status engine.InstanceStatus

	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		t, cleanup, err := p.session(ctx, ref)
		if err != nil {
			return err
		}
		defer cleanup()

		stdout, stderr, err := t.Execute(ctx, probeCommand(unitDir(ref)))
		if err != nil {
			return fmt.Errorf("failed to probe unit: %s: %w", stderr, err)
		}

		status, err = parseProbe(stdout)
		return err
	})
	if err != nil {
		return engine.Instance[Ref]{}, err
	}

	return engine.Instance[Ref]{Status: status, Ref: ref}, nil
}

// Destroy stops the unit's process and removes its directory. Both are
// idempotent, so the whole operation retries on transient failures.
func (p *Provider) Destroy(ctx context.Context, ref Ref) error {
	return retry.Do(ctx, p.policy, func(ctx context.Context) error {
		t, cleanup, err := p.session(ctx, ref)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, stderr, err := t.Execute(ctx, destroyCommand(unitDir(ref))); err != nil {
			return fmt.Errorf("failed to tear down unit: %s: %w", stderr, err)
		}
		return nil
	})
}

// connect establishes the transport connection under the retry policy.
func (p *Provider) connect(ctx context.Context, t sshtransport.Transport) error {
	return retry.Do(ctx, p.policy, func(ctx context.Context) error {
		return t.Connect(ctx)
	})
}

// session dials the host a ref points at. The connect is not retried
// here; GetInfo and Destroy wrap their whole operation in the retry
// policy already.
func (p *Provider) session(ctx context.Context, ref Ref) (sshtransport.Transport, func(), error) {
	t, err := p.dial(Config{Host: ref.Host, Port: ref.Port, User: ref.User})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build transport: %w", err)
	}
	if err := t.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", ref.Host, err)
	}
	return t, func() { _ = t.Disconnect() }, nil
}

// unitDir is where a ref's unit lives on the remote host.
func unitDir(ref Ref) string {
	return path.Join(ref.Workdir, ref.Unit)
}

// startCommand launches the uploaded bootstrap in the background and
// records its pid. The exit marker is written when the script ends so
// probes can tell finished from dead.
func startCommand(dir string) string {
	return fmt.Sprintf(
		`cd %q && (nohup sh -c 'sh bootstrap; echo $? > exit.status' > bootstrap.log 2>&1 & echo $! > unit.pid)`,
		dir,
	)
}

// probeCommand reports the unit's state as a single word on stdout.
func probeCommand(dir string) string {
	return fmt.Sprintf(
		`if [ ! -d %[1]q ]; then echo missing; `+
			`elif [ -f %[1]q/exit.status ]; then echo "exited $(cat %[1]q/exit.status)"; `+
			`elif kill -0 "$(cat %[1]q/unit.pid 2>/dev/null)" 2>/dev/null; then echo running; `+
			`else echo dead; fi`,
		dir,
	)
}

// destroyCommand kills the unit's process if it still runs and removes
// the unit directory. Safe to repeat.
func destroyCommand(dir string) string {
	return fmt.Sprintf(
		`if [ -f %[1]q/unit.pid ]; then kill "$(cat %[1]q/unit.pid)" 2>/dev/null || true; fi; rm -rf %[1]q`,
		dir,
	)
}

// parseProbe maps probe output to an instance status.
func parseProbe(out string) (engine.InstanceStatus, error) {
	switch {
	case out == "missing":
		return engine.InstanceStatusDestroyed, nil
	case out == "running":
		return engine.InstanceStatusRunning, nil
	case out == "dead":
		return engine.InstanceStatusErrored, nil
	case strings.HasPrefix(out, "exited "):
		if strings.TrimPrefix(out, "exited ") == "0" {
			return engine.InstanceStatusDestroyed, nil
		}
		return engine.InstanceStatusErrored, nil
	}
	return "", fmt.Errorf("unexpected probe output: %q", out)
}

const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"host": {
			"type": "string",
			"minLength": 1,
			"description": "Remote hostname or IP address"
		},
		"port": {
			"type": "integer",
			"minimum": 1,
			"maximum": 65535,
			"description": "SSH port, 22 when omitted"
		},
		"user": {
			"type": "string",
			"minLength": 1
		},
		"private_key": {
			"type": "string",
			"description": "PEM-encoded private key material"
		},
		"password": {
			"type": "string"
		},
		"workdir": {
			"type": "string",
			"pattern": "^/",
			"description": "Absolute directory units are deployed under"
		}
	},
	"required": ["host", "user"],
	"additionalProperties": false
}`

const refSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"host": {"type": "string", "minLength": 1},
		"port": {"type": "integer", "minimum": 1, "maximum": 65535},
		"user": {"type": "string", "minLength": 1},
		"workdir": {"type": "string", "minLength": 1},
		"unit": {"type": "string", "minLength": 1}
	},
	"required": ["host", "user", "workdir", "unit"],
	"additionalProperties": false
}`
