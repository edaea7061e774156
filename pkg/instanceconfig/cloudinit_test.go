package instanceconfig

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/openberth/openberth/pkg/mapper"
)

func TestCloudInitMapper(t *testing.T) {
	m := NewCloudInitMapper()
	ctx := context.Background()

	t.Run("RendersDocument", func(t *testing.T) {
		raw := json.RawMessage(`{
			"hostname": "worker-01",
			"package_update": true,
			"packages": ["docker.io", "curl"],
			"runcmd": ["systemctl enable --now docker"]
		}`)

		payload, err := m.ValidateAndMap(ctx, raw)
		if err != nil {
			t.Fatalf("Expected success, got: %v", err)
		}

		doc := string(payload)
		if !strings.HasPrefix(doc, "#cloud-config\n") {
			t.Errorf("Expected #cloud-config header, got:\n%s", doc)
		}
		if !strings.Contains(doc, "package_update: true") {
			t.Errorf("Expected package_update directive, got:\n%s", doc)
		}

		// The header line is a YAML comment, so the payload parses whole
		var parsed CloudInitConfig
		if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
			t.Fatalf("Rendered document is not valid YAML: %v", err)
		}
		if parsed.Hostname != "worker-01" {
			t.Errorf("Expected hostname 'worker-01', got '%s'", parsed.Hostname)
		}
		if len(parsed.Packages) != 2 {
			t.Errorf("Expected 2 packages, got %d", len(parsed.Packages))
		}
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		_, err := m.ValidateAndMap(ctx, json.RawMessage(`{}`))
		if !mapper.IsTransformError(err) {
			t.Errorf("Expected a transform error for an empty document, got: %v", err)
		}
	})

	t.Run("UsersAndFiles", func(t *testing.T) {
		raw := json.RawMessage(`{
			"users": [{
				"name": "deploy",
				"groups": ["docker"],
				"sudo": "ALL=(ALL) NOPASSWD:ALL",
				"ssh_authorized_keys": ["ssh-ed25519 AAAA deploy@ci"]
			}],
			"write_files": [{
				"path": "/etc/motd",
				"content": "managed by openberth",
				"permissions": "0644"
			}]
		}`)

		payload, err := m.ValidateAndMap(ctx, raw)
		if err != nil {
			t.Fatalf("Expected success, got: %v", err)
		}

		doc := string(payload)
		if !strings.Contains(doc, "ssh_authorized_keys:") {
			t.Errorf("Expected ssh_authorized_keys key, got:\n%s", doc)
		}
		if !strings.Contains(doc, "path: /etc/motd") {
			t.Errorf("Expected write_files path, got:\n%s", doc)
		}
	})

	t.Run("MissingUserName", func(t *testing.T) {
		raw := json.RawMessage(`{"users": [{"shell": "/bin/bash"}]}`)
		_, err := m.ValidateAndMap(ctx, raw)

		var verr *mapper.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected *mapper.ValidationError, got %T: %v", err, err)
		}
		if verr.Path != "/users/0" {
			t.Errorf("Expected path '/users/0', got '%s'", verr.Path)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := m.ValidateAndMap(ctx, json.RawMessage(`{"bootcmd": ["echo hi"]}`))
		if !mapper.IsValidationError(err) {
			t.Errorf("Expected a validation error for an unknown field, got: %v", err)
		}
	})

	t.Run("MapFromTypedConfig", func(t *testing.T) {
		cfg := CloudInitConfig{
			Hostname: "bastion",
			Packages: []string{"fail2ban"},
		}

		payload, err := m.MapFrom(ctx, cfg)
		if err != nil {
			t.Fatalf("Expected success, got: %v", err)
		}
		if !strings.Contains(string(payload), "hostname: bastion") {
			t.Errorf("Expected hostname line, got:\n%s", payload)
		}
	})
}
