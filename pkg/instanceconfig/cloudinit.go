package instanceconfig

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
)

// CloudInitID is the instance-config id the cloud-init mapper is
// registered under.
const CloudInitID = "cloud-init"

// cloudInitHeader marks the payload as a cloud-config document. Cloud
// datasources dispatch on this first line.
const cloudInitHeader = "#cloud-config\n"

// CloudInitUser describes a user created at first boot.
type CloudInitUser struct {
	// Name is the account name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Groups lists supplementary groups.
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`

	// Shell is the login shell.
	Shell string `json:"shell,omitempty" yaml:"shell,omitempty"`

	// Sudo is a sudoers rule ("ALL=(ALL) NOPASSWD:ALL").
	Sudo string `json:"sudo,omitempty" yaml:"sudo,omitempty"`

	// SSHAuthorizedKeys lists public keys installed for the user.
	SSHAuthorizedKeys []string `json:"ssh_authorized_keys,omitempty" yaml:"ssh_authorized_keys,omitempty"`
}

// CloudInitFile describes a file written at first boot.
type CloudInitFile struct {
	// Path is the absolute destination path.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Content is the literal file content.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Permissions is an octal mode string ("0644").
	Permissions string `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	// Owner is the "user:group" owning the file.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// CloudInitConfig is the typed input of the cloud-init mapper.
type CloudInitConfig struct {
	// Hostname sets the instance hostname.
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`

	// PackageUpdate refreshes the package index before installs.
	PackageUpdate bool `json:"package_update,omitempty" yaml:"package_update,omitempty"`

	// Packages lists packages installed at first boot.
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty"`

	// RunCmd lists shell commands executed after boot.
	RunCmd []string `json:"runcmd,omitempty" yaml:"runcmd,omitempty"`

	// Users lists accounts created at first boot.
	Users []CloudInitUser `json:"users,omitempty" yaml:"users,omitempty" validate:"dive"`

	// WriteFiles lists files written at first boot.
	WriteFiles []CloudInitFile `json:"write_files,omitempty" yaml:"write_files,omitempty" validate:"dive"`
}

// empty reports whether the document carries no directives at all.
func (c CloudInitConfig) empty() bool {
	return c.Hostname == "" && !c.PackageUpdate && len(c.Packages) == 0 &&
		len(c.RunCmd) == 0 && len(c.Users) == 0 && len(c.WriteFiles) == 0
}

// NewCloudInitMapper returns the mapper producing a cloud-config YAML
// payload from a cloud-init configuration.
func NewCloudInitMapper() mapper.Mapper[engine.InstancePayload] {
	return mapper.MustNew(cloudInitSchema, renderCloudInit)
}

// renderCloudInit renders the validated configuration as a cloud-config
// document. An empty document would boot an unconfigured instance and is
// rejected.
func renderCloudInit(_ context.Context, cfg CloudInitConfig) (engine.InstancePayload, error) {
	if cfg.empty() {
		return "", &mapper.TransformError{Message: "cloud-init document is empty"}
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render cloud-init document: %w", err)
	}

	return engine.InstancePayload(cloudInitHeader + string(body)), nil
}

const cloudInitSchema = `{
	"type": "object",
	"properties": {
		"hostname": {"type": "string"},
		"package_update": {"type": "boolean"},
		"packages": {"type": "array", "items": {"type": "string"}},
		"runcmd": {"type": "array", "items": {"type": "string"}},
		"users": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"groups": {"type": "array", "items": {"type": "string"}},
					"shell": {"type": "string"},
					"sudo": {"type": "string"},
					"ssh_authorized_keys": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["name"],
				"additionalProperties": false
			}
		},
		"write_files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"path": {"type": "string", "minLength": 1},
					"content": {"type": "string"},
					"permissions": {"type": "string"},
					"owner": {"type": "string"}
				},
				"required": ["path"],
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`
