package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

const testRego = `# Rejects applications named forbidden

package openberth.policies.test

import rego.v1

deny contains msg if {
	input.app.id == "forbidden"
	msg := "application id is forbidden"
}`

func TestLoader_RegoFile(t *testing.T) {
	loader := testLoader()
	path := writePolicyFile(t, t.TempDir(), "no-forbidden.rego", testRego)

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "no-forbidden" {
		t.Errorf("Expected name 'no-forbidden', got %q", p.Name)
	}
	if p.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if p.Severity != SeverityDeny {
		t.Errorf("Expected default deny severity, got %q", p.Severity)
	}
	if !p.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if p.Description != "Rejects applications named forbidden" {
		t.Errorf("Unexpected description: %q", p.Description)
	}
	if p.Source != path {
		t.Errorf("Expected source %q, got %q", path, p.Source)
	}
}

func TestLoader_JSONFile(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	policy := Policy{
		Name:        "provider-check",
		Description: "A provider admission rule",
		Rego:        testRego,
		Severity:    SeverityWarn,
		Enabled:     true,
		Tags:        []string{"test"},
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	path := writePolicyFile(t, tmpDir, "provider-check.json", string(data))

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	loaded := policies[0]
	if loaded.Name != policy.Name {
		t.Errorf("Expected name %q, got %q", policy.Name, loaded.Name)
	}
	if loaded.Severity != SeverityWarn {
		t.Errorf("Expected severity %q, got %q", SeverityWarn, loaded.Severity)
	}
	if loaded.Source != path {
		t.Errorf("Expected source %q, got %q", path, loaded.Source)
	}
}

func TestLoader_JSONFileValidation(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing name", `{"rego": "package x"}`},
		{"missing rego", `{"name": "x"}`},
		{"malformed", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePolicyFile(t, tmpDir, "bad.json", tt.content)
			loader.ClearCache()

			if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoader_JSONSeverityDefault(t *testing.T) {
	loader := testLoader()
	path := writePolicyFile(t, t.TempDir(), "p.json",
		`{"name": "p", "rego": "package x"}`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policies[0].Severity != SeverityDeny {
		t.Errorf("Expected deny default, got %q", policies[0].Severity)
	}
}

func TestLoader_Directory(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	writePolicyFile(t, tmpDir, "a.rego", testRego)
	writePolicyFile(t, tmpDir, "b.json", `{"name": "b", "rego": "package x"}`)
	writePolicyFile(t, tmpDir, "notes.txt", "not a policy")
	// Broken files are skipped, not fatal.
	writePolicyFile(t, tmpDir, "broken.json", `{broken`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoader_MissingPath(t *testing.T) {
	loader := testLoader()

	_, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestLoader_Cache(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()
	path := writePolicyFile(t, tmpDir, "cached.rego", testRego)

	first, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	// Rewrite the file; the cached entry still serves until invalidated.
	writePolicyFile(t, tmpDir, "cached.rego", "package openberth.policies.test\n# changed\n")

	second, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to reload policy: %v", err)
	}
	if second[0].Rego != first[0].Rego {
		t.Error("Expected cached content on second load")
	}

	loader.ClearCache()

	third, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to reload policy: %v", err)
	}
	if third[0].Rego == first[0].Rego {
		t.Error("Expected fresh content after ClearCache")
	}
}

func TestLoader_Watch(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()
	writePolicyFile(t, tmpDir, "w.rego", testRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reloaded []Policy
	err := loader.Watch(ctx, []string{tmpDir}, func(policies []Policy) error {
		mu.Lock()
		defer mu.Unlock()
		reloaded = policies
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	writePolicyFile(t, tmpDir, "w2.rego", testRego)

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(reloaded)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Reload not observed, have %d policies", n)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "leading comments",
			content: "# First line\n# Second line\npackage x\n",
			want:    "First line Second line",
		},
		{
			name:    "no comments",
			content: "package x\n",
			want:    "",
		},
		{
			name:    "comments after code ignored",
			content: "package x\n# trailing\n",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDescription(tt.content); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
