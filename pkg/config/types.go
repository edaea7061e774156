package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openberth/openberth/pkg/engine"
)

// VariableConfigSpec selects a registered mapper or provider by id and
// carries its raw configuration document.
type VariableConfigSpec struct {
	// ID names the instance-config mapper or provider.
	ID string `json:"id" validate:"required"`

	// Config is the raw configuration the named component validates.
	Config json.RawMessage `json:"config" validate:"required"`
}

// AppManifest is one application as an operator writes it: an id plus the
// instance-config and provider selections. It is the document form of an
// engine.ApplicationRecord.
type AppManifest struct {
	// ID uniquely identifies the application.
	ID string `json:"id" validate:"required"`

	// Instance selects and parameterizes the instance-config mapper.
	Instance VariableConfigSpec `json:"instance" validate:"required"`

	// Provider selects and parameterizes the deployment provider.
	Provider VariableConfigSpec `json:"provider" validate:"required"`
}

// ToRecord converts the manifest into the record the controller stores.
func (m AppManifest) ToRecord() engine.ApplicationRecord {
	return engine.ApplicationRecord{
		ID: m.ID,
		InstanceConfig: engine.VariableConfig{
			ID:     m.Instance.ID,
			Config: m.Instance.Config,
		},
		ProviderConfig: engine.VariableConfig{
			ID:     m.Provider.ID,
			Config: m.Provider.Config,
		},
	}
}

// ValidationError is one manifest problem with its source location.
type ValidationError struct {
	// File is the manifest file path.
	File string `json:"file,omitempty"`

	// Line and Column locate the problem in the file, 1-indexed, zero
	// when unknown.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`

	// Path locates the problem inside the document (e.g. "apps[2]").
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`

	// Severity is "error" or "warning".
	Severity string `json:"severity"`
}

// Error renders the location-prefixed message.
func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&b, ":%d", e.Column)
			}
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ParseResult is the outcome of parsing one manifest source. Manifests
// holds every app that parsed cleanly; Errors holds everything wrong with
// the source. A result can carry both when only some apps are broken.
type ParseResult struct {
	// Manifests are the parsed applications.
	Manifests []AppManifest `json:"manifests"`

	// Source is the file the manifests came from.
	Source string `json:"source"`

	// ParsedAt is when the source was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation problems.
	Errors []ValidationError `json:"errors,omitempty"`
}

// OK reports whether the source parsed without errors.
func (r *ParseResult) OK() bool {
	return len(r.Errors) == 0
}

// Err collapses the error list into a single error, nil when the source
// parsed cleanly.
func (r *ParseResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}

	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
}
