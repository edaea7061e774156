package wasmhost

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile mirrors the manifest.yaml a provider plug-in ships next to
// its compiled module.
type ManifestFile struct {
	// Name is the provider id the plug-in registers under.
	Name string `yaml:"name"`

	// Version is the plug-in version, dot-separated numeric fields.
	Version string `yaml:"version"`

	// Author identifies who publishes the plug-in.
	Author string `yaml:"author"`

	// Description is free-form text shown in listings.
	Description string `yaml:"description,omitempty"`

	// Entrypoint is the .wasm module path, relative to the manifest
	// unless absolute.
	Entrypoint string `yaml:"entrypoint"`

	// Checksum is the optional hex sha256 of the module bytes.
	Checksum string `yaml:"checksum,omitempty"`

	// ConfigSchema is the JSON-Schema the plug-in validates provider
	// config documents against, as a JSON string.
	ConfigSchema string `yaml:"config_schema"`

	// RefSchema is the JSON-Schema for the plug-in's instance refs, as
	// a JSON string.
	RefSchema string `yaml:"ref_schema"`
}

// Key returns the name@version identity of the plug-in.
func (f ManifestFile) Key() string {
	return f.Name + "@" + f.Version
}

// Manifest is a parsed, path-resolved provider manifest.
type Manifest struct {
	// Raw is the manifest as declared in the file.
	Raw ManifestFile

	// Path is where the manifest was loaded from, empty when loaded
	// from bytes.
	Path string

	// WasmPath is the resolved location of the module.
	WasmPath string

	// ConfigSchema and RefSchema are the declared schemas parsed into
	// JSON trees.
	ConfigSchema map[string]any
	RefSchema    map[string]any

	// Verified reports whether the module bytes matched the declared
	// checksum.
	Verified bool
}

// VerifyChecksum checks the module bytes against the declared checksum and
// marks the manifest verified on match.
func (m *Manifest) VerifyChecksum(wasmModule []byte) error {
	if m.Raw.Checksum == "" {
		return fmt.Errorf("manifest for %s declares no checksum", m.Raw.Key())
	}

	hash := sha256.Sum256(wasmModule)
	computed := hex.EncodeToString(hash[:])
	if computed != m.Raw.Checksum {
		return fmt.Errorf("module checksum mismatch for %s: manifest declares %s, module is %s",
			m.Raw.Key(), m.Raw.Checksum, computed)
	}

	m.Verified = true
	return nil
}

// ManifestLoader parses and validates provider manifests.
type ManifestLoader struct {
	// BaseDir resolves relative entrypoints when a manifest is loaded
	// from bytes rather than a file.
	BaseDir string
}

// NewManifestLoader creates a loader resolving relative paths under
// baseDir.
func NewManifestLoader(baseDir string) *ManifestLoader {
	return &ManifestLoader{BaseDir: baseDir}
}

// LoadFromFile loads a manifest from a YAML file and resolves its
// entrypoint relative to the file.
func (l *ManifestLoader) LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	manifest.Path = path

	if err := l.resolveWasmPath(manifest); err != nil {
		return nil, err
	}

	return manifest, nil
}

// LoadFromBytes loads a manifest from raw YAML and verifies the given
// module bytes against its checksum when one is declared. The entrypoint
// is not resolved; the caller already holds the module.
func (l *ManifestLoader) LoadFromBytes(data, wasmModule []byte) (*Manifest, error) {
	manifest, err := l.parse(data)
	if err != nil {
		return nil, err
	}

	if manifest.Raw.Checksum != "" {
		if err := manifest.VerifyChecksum(wasmModule); err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

func (l *ManifestLoader) parse(data []byte) (*Manifest, error) {
	var raw ManifestFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := validateManifest(&raw); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	manifest := &Manifest{Raw: raw}
	if err := manifest.parseSchemas(); err != nil {
		return nil, err
	}

	return manifest, nil
}

// validateManifest checks the declared fields before any module bytes are
// touched.
func validateManifest(raw *ManifestFile) error {
	if raw.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if raw.Version == "" {
		return fmt.Errorf("provider version is required")
	}
	if raw.Author == "" {
		return fmt.Errorf("provider author is required")
	}
	if raw.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if !strings.HasSuffix(raw.Entrypoint, ".wasm") {
		return fmt.Errorf("entrypoint %q is not a .wasm module", raw.Entrypoint)
	}
	if raw.ConfigSchema == "" {
		return fmt.Errorf("config_schema is required")
	}
	if raw.RefSchema == "" {
		return fmt.Errorf("ref_schema is required")
	}
	return nil
}

// parseSchemas parses the declared schema strings into JSON trees so a
// malformed schema fails at registration, not at first use.
func (m *Manifest) parseSchemas() error {
	var cfg map[string]any
	if err := json.Unmarshal([]byte(m.Raw.ConfigSchema), &cfg); err != nil {
		return fmt.Errorf("failed to parse config_schema for %s: %w", m.Raw.Key(), err)
	}
	m.ConfigSchema = cfg

	var ref map[string]any
	if err := json.Unmarshal([]byte(m.Raw.RefSchema), &ref); err != nil {
		return fmt.Errorf("failed to parse ref_schema for %s: %w", m.Raw.Key(), err)
	}
	m.RefSchema = ref

	return nil
}

// resolveWasmPath resolves the entrypoint relative to the manifest file,
// or BaseDir when the manifest has no path, and requires the module to
// exist.
func (l *ManifestLoader) resolveWasmPath(manifest *Manifest) error {
	entrypoint := manifest.Raw.Entrypoint
	switch {
	case filepath.IsAbs(entrypoint):
		manifest.WasmPath = entrypoint
	case manifest.Path != "":
		manifest.WasmPath = filepath.Join(filepath.Dir(manifest.Path), entrypoint)
	default:
		manifest.WasmPath = filepath.Join(l.BaseDir, entrypoint)
	}

	if _, err := os.Stat(manifest.WasmPath); err != nil {
		return fmt.Errorf("wasm module not found at %s: %w", manifest.WasmPath, err)
	}

	return nil
}
