package wasmhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openberth/openberth/pkg/engine"
)

// ManifestFileName is the manifest a plug-in directory must contain.
const ManifestFileName = "manifest.yaml"

// Registry holds discovered provider plug-ins keyed by name@version.
// Registration stores the manifest and module bytes; the module is
// instantiated lazily on first Get and cached.
type Registry struct {
	mu sync.RWMutex

	// hosts caches instantiated providers.
	hosts map[string]*Host

	// manifests and modules hold registered plug-ins awaiting
	// instantiation.
	manifests map[string]*Manifest
	modules   map[string][]byte

	loader     *ManifestLoader
	hostConfig *HostConfig
}

// NewRegistry creates an empty registry. baseDir resolves relative
// entrypoints for manifests registered from bytes.
func NewRegistry(baseDir string, hostConfig *HostConfig) *Registry {
	return &Registry{
		hosts:      make(map[string]*Host),
		manifests:  make(map[string]*Manifest),
		modules:    make(map[string][]byte),
		loader:     NewManifestLoader(baseDir),
		hostConfig: hostConfig,
	}
}

// Register loads the manifest at manifestPath, reads and (when a checksum
// is declared) verifies its module, and records the plug-in.
func (r *Registry) Register(ctx context.Context, manifestPath string) error {
	manifest, err := r.loader.LoadFromFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	wasmModule, err := os.ReadFile(manifest.WasmPath)
	if err != nil {
		return fmt.Errorf("failed to read wasm module: %w", err)
	}

	if manifest.Raw.Checksum != "" {
		if err := manifest.VerifyChecksum(wasmModule); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := manifest.Raw.Key()
	if _, exists := r.manifests[key]; exists {
		return fmt.Errorf("provider %s is already registered", key)
	}

	r.manifests[key] = manifest
	r.modules[key] = wasmModule

	log.Debug().
		Str("provider", key).
		Str("manifest", manifestPath).
		Bool("verified", manifest.Verified).
		Msg("Registered WASM provider")

	return nil
}

// ScanDirectory registers every subdirectory of dir that contains a
// manifest.yaml. A plug-in that fails to register is logged and skipped so
// one broken plug-in cannot take down discovery.
func (r *Registry) ScanDirectory(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read providers directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(dir, entry.Name(), ManifestFileName)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		if err := r.Register(ctx, manifestPath); err != nil {
			log.Warn().
				Err(err).
				Str("manifest", manifestPath).
				Msg("Skipping WASM provider")
		}
	}

	return nil
}

// Get resolves a version constraint and returns the provider's adapter,
// instantiating the module on first use.
//
// Constraints: an exact version, "latest" (or empty) for the newest
// registered version, "~x.y.z" for the newest x.y patch at or above z, and
// "^x.y.z" for the newest x release at or above y.z.
func (r *Registry) Get(ctx context.Context, name, version string) (engine.ProviderAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.resolveVersion(name, version)
	if err != nil {
		return nil, err
	}

	if host, exists := r.hosts[key]; exists {
		return host.Adapter(), nil
	}

	host, err := NewHost(ctx, r.manifests[key], r.modules[key], r.hostConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate provider %s: %w", key, err)
	}
	r.hosts[key] = host

	return host.Adapter(), nil
}

// List returns the registered manifests sorted by name@version.
func (r *Registry) List() []ManifestFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ManifestFile, 0, len(r.manifests))
	for _, manifest := range r.manifests {
		out = append(out, manifest.Raw)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})

	return out
}

// Unregister removes a plug-in, closing its host if it was instantiated.
func (r *Registry) Unregister(ctx context.Context, name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := name + "@" + version

	if host, exists := r.hosts[key]; exists {
		if err := host.Close(ctx); err != nil {
			return fmt.Errorf("failed to close provider %s: %w", key, err)
		}
		delete(r.hosts, key)
	}

	delete(r.manifests, key)
	delete(r.modules, key)

	return nil
}

// Close releases every instantiated host.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []string
	for key, host := range r.hosts {
		if err := host.Close(ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", key, err))
		}
	}

	r.hosts = make(map[string]*Host)
	r.manifests = make(map[string]*Manifest)
	r.modules = make(map[string][]byte)

	if len(failed) > 0 {
		return fmt.Errorf("failed to close providers: %s", strings.Join(failed, "; "))
	}
	return nil
}

// resolveVersion maps a constraint to a registered name@version key.
// Callers hold r.mu.
func (r *Registry) resolveVersion(name, version string) (string, error) {
	switch {
	case version == "" || version == "latest":
		key, ok := r.bestMatch(name, func(string) bool { return true })
		if !ok {
			return "", fmt.Errorf("provider %s not found", name)
		}
		return key, nil

	case strings.HasPrefix(version, "~"):
		floor := version[1:]
		parts := strings.SplitN(floor, ".", 3)
		if len(parts) < 2 {
			return "", fmt.Errorf("invalid version constraint %q", version)
		}
		series := parts[0] + "." + parts[1]
		key, ok := r.bestMatch(name, func(v string) bool {
			return inSeries(v, series) && compareVersions(v, floor) >= 0
		})
		if !ok {
			return "", fmt.Errorf("no version of provider %s matches %s", name, version)
		}
		return key, nil

	case strings.HasPrefix(version, "^"):
		floor := version[1:]
		series, _, _ := strings.Cut(floor, ".")
		if series == "" {
			return "", fmt.Errorf("invalid version constraint %q", version)
		}
		key, ok := r.bestMatch(name, func(v string) bool {
			return inSeries(v, series) && compareVersions(v, floor) >= 0
		})
		if !ok {
			return "", fmt.Errorf("no version of provider %s matches %s", name, version)
		}
		return key, nil

	default:
		key := name + "@" + version
		if _, exists := r.manifests[key]; !exists {
			return "", fmt.Errorf("provider %s not found", key)
		}
		return key, nil
	}
}

// bestMatch returns the key of the newest registered version of name
// accepted by the filter.
func (r *Registry) bestMatch(name string, accept func(version string) bool) (string, bool) {
	var best string
	for _, manifest := range r.manifests {
		if manifest.Raw.Name != name || !accept(manifest.Raw.Version) {
			continue
		}
		if best == "" || compareVersions(manifest.Raw.Version, best) > 0 {
			best = manifest.Raw.Version
		}
	}

	if best == "" {
		return "", false
	}
	return name + "@" + best, true
}

// inSeries reports whether version sits under the given dotted prefix,
// matching whole fields so "1.1" does not capture "1.10".
func inSeries(version, series string) bool {
	return version == series || strings.HasPrefix(version, series+".")
}

// compareVersions orders dot-separated versions field by field, numerically
// where both fields are numbers. A missing field sorts before any present
// one, so 1.0 precedes 1.0.0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}

		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		default:
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
	}

	return 0
}
