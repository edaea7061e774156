package wasmhost

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifestYAML = `
name: demo
version: 1.0.0
author: Test Author
description: deploys nothing useful
entrypoint: provider.wasm
checksum: ""
config_schema: '{"type": "object", "properties": {"region": {"type": "string"}}}'
ref_schema: '{"type": "object", "properties": {"id": {"type": "string"}}}'
`

func TestManifestLoader_LoadFromBytes(t *testing.T) {
	loader := NewManifestLoader(t.TempDir())

	manifest, err := loader.LoadFromBytes([]byte(testManifestYAML), []byte("fake wasm"))
	if err != nil {
		t.Fatalf("Failed to load manifest: %v", err)
	}

	if manifest.Raw.Name != "demo" {
		t.Errorf("Expected name 'demo', got %q", manifest.Raw.Name)
	}
	if manifest.Raw.Key() != "demo@1.0.0" {
		t.Errorf("Expected key 'demo@1.0.0', got %q", manifest.Raw.Key())
	}
	if manifest.Verified {
		t.Error("Expected manifest without checksum to stay unverified")
	}

	if manifest.ConfigSchema["type"] != "object" {
		t.Errorf("Expected parsed config schema, got %v", manifest.ConfigSchema)
	}
	if _, ok := manifest.RefSchema["properties"]; !ok {
		t.Errorf("Expected parsed ref schema, got %v", manifest.RefSchema)
	}
}

func TestManifestLoader_Checksum(t *testing.T) {
	module := []byte("fake wasm module")
	hash := sha256.Sum256(module)
	checksum := hex.EncodeToString(hash[:])

	withChecksum := strings.Replace(testManifestYAML, `checksum: ""`, "checksum: "+checksum, 1)

	loader := NewManifestLoader(t.TempDir())

	t.Run("Match", func(t *testing.T) {
		manifest, err := loader.LoadFromBytes([]byte(withChecksum), module)
		if err != nil {
			t.Fatalf("Failed to load manifest: %v", err)
		}
		if !manifest.Verified {
			t.Error("Expected manifest to be verified")
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		_, err := loader.LoadFromBytes([]byte(withChecksum), []byte("tampered module"))
		if err == nil {
			t.Fatal("Expected checksum mismatch error")
		}
		if !strings.Contains(err.Error(), "checksum mismatch") {
			t.Errorf("Expected checksum mismatch error, got: %v", err)
		}
	})
}

func TestManifestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *ManifestFile)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(f *ManifestFile) {},
		},
		{
			name:    "MissingName",
			mutate:  func(f *ManifestFile) { f.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "MissingVersion",
			mutate:  func(f *ManifestFile) { f.Version = "" },
			wantErr: "version is required",
		},
		{
			name:    "MissingAuthor",
			mutate:  func(f *ManifestFile) { f.Author = "" },
			wantErr: "author is required",
		},
		{
			name:    "MissingEntrypoint",
			mutate:  func(f *ManifestFile) { f.Entrypoint = "" },
			wantErr: "entrypoint is required",
		},
		{
			name:    "EntrypointNotWasm",
			mutate:  func(f *ManifestFile) { f.Entrypoint = "provider.so" },
			wantErr: "not a .wasm module",
		},
		{
			name:    "MissingConfigSchema",
			mutate:  func(f *ManifestFile) { f.ConfigSchema = "" },
			wantErr: "config_schema is required",
		},
		{
			name:    "MissingRefSchema",
			mutate:  func(f *ManifestFile) { f.RefSchema = "" },
			wantErr: "ref_schema is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := ManifestFile{
				Name:         "demo",
				Version:      "1.0.0",
				Author:       "Test Author",
				Entrypoint:   "provider.wasm",
				ConfigSchema: `{"type": "object"}`,
				RefSchema:    `{"type": "object"}`,
			}
			tt.mutate(&file)

			err := validateManifest(&file)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestManifestLoader_BadSchema(t *testing.T) {
	broken := strings.Replace(testManifestYAML,
		`config_schema: '{"type": "object", "properties": {"region": {"type": "string"}}}'`,
		`config_schema: 'not json'`, 1)

	loader := NewManifestLoader(t.TempDir())
	_, err := loader.LoadFromBytes([]byte(broken), nil)
	if err == nil {
		t.Fatal("Expected error for malformed config_schema")
	}
	if !strings.Contains(err.Error(), "config_schema") {
		t.Errorf("Expected config_schema parse error, got: %v", err)
	}
}

func TestManifestLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()

	wasmPath := filepath.Join(dir, "provider.wasm")
	if err := os.WriteFile(wasmPath, []byte("fake wasm"), 0o644); err != nil {
		t.Fatalf("Failed to write wasm file: %v", err)
	}

	manifestPath := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(manifestPath, []byte(testManifestYAML), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	loader := NewManifestLoader(dir)
	manifest, err := loader.LoadFromFile(manifestPath)
	if err != nil {
		t.Fatalf("Failed to load manifest from file: %v", err)
	}

	if manifest.Path != manifestPath {
		t.Errorf("Expected path %q, got %q", manifestPath, manifest.Path)
	}
	if manifest.WasmPath != wasmPath {
		t.Errorf("Expected wasm path %q, got %q", wasmPath, manifest.WasmPath)
	}
}

func TestManifestLoader_MissingModule(t *testing.T) {
	dir := t.TempDir()

	manifestPath := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(manifestPath, []byte(testManifestYAML), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	loader := NewManifestLoader(dir)
	_, err := loader.LoadFromFile(manifestPath)
	if err == nil {
		t.Fatal("Expected error for missing wasm module")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not-found error, got: %v", err)
	}
}

// writePlugin lays out a plug-in directory with a manifest and a fake
// module, returning the manifest path.
func writePlugin(t *testing.T, baseDir, name, version string, module []byte) string {
	t.Helper()

	pluginDir := filepath.Join(baseDir, name+"-"+version)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("Failed to create plugin dir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(pluginDir, "provider.wasm"), module, 0o644); err != nil {
		t.Fatalf("Failed to write wasm module: %v", err)
	}

	manifest := fmt.Sprintf(`
name: %s
version: %s
author: Test Author
description: test plug-in
entrypoint: provider.wasm
config_schema: '{"type": "object"}'
ref_schema: '{"type": "object"}'
`, name, version)

	manifestPath := filepath.Join(pluginDir, ManifestFileName)
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	return manifestPath
}
