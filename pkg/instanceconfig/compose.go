package instanceconfig

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
)

// ComposeID is the instance-config id the compose mapper is registered
// under.
const ComposeID = "compose"

// ComposeService describes one service of a compose document.
type ComposeService struct {
	// Image is the container image reference.
	Image string `json:"image" yaml:"image" validate:"required"`

	// Command overrides the image's default command.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Environment sets environment variables inside the container.
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// Ports publishes container ports ("8080:80").
	Ports []string `json:"ports,omitempty" yaml:"ports,omitempty"`

	// Volumes mounts named volumes or host paths ("data:/var/lib/data").
	Volumes []string `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	// Restart is the container restart policy.
	Restart string `json:"restart,omitempty" yaml:"restart,omitempty"`

	// DependsOn lists services that must be started first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ComposeConfig is the typed input of the compose mapper.
type ComposeConfig struct {
	// Name is the optional compose project name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Services maps service names to their definitions.
	Services map[string]ComposeService `json:"services" yaml:"services" validate:"dive"`

	// Networks declares networks referenced by services.
	Networks map[string]interface{} `json:"networks,omitempty" yaml:"networks,omitempty"`

	// Volumes declares named volumes referenced by services.
	Volumes map[string]interface{} `json:"volumes,omitempty" yaml:"volumes,omitempty"`
}

// NewComposeMapper returns the mapper producing a docker-compose YAML
// payload from a compose configuration.
func NewComposeMapper() mapper.Mapper[engine.InstancePayload] {
	return mapper.MustNew(composeSchema, renderCompose)
}

// renderCompose renders the validated configuration as a compose YAML
// document. A document without services boots nothing and is rejected.
func renderCompose(_ context.Context, cfg ComposeConfig) (engine.InstancePayload, error) {
	if len(cfg.Services) == 0 {
		return "", &mapper.TransformError{Message: "compose document declares no services"}
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render compose document: %w", err)
	}

	return engine.InstancePayload(out), nil
}

const composeSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"services": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"image": {"type": "string", "minLength": 1},
					"command": {"type": "array", "items": {"type": "string"}},
					"environment": {"type": "object", "additionalProperties": {"type": "string"}},
					"ports": {"type": "array", "items": {"type": "string"}},
					"volumes": {"type": "array", "items": {"type": "string"}},
					"restart": {"type": "string", "enum": ["no", "always", "on-failure", "unless-stopped"]},
					"depends_on": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["image"],
				"additionalProperties": false
			}
		},
		"networks": {"type": "object"},
		"volumes": {"type": "object"}
	},
	"required": ["services"],
	"additionalProperties": false
}`
