package policy

import (
	"time"

	"github.com/openberth/openberth/pkg/engine"
)

// Severity classifies how a violation affects the requested operation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarn is for findings that should be reviewed but do not
	// block the operation.
	SeverityWarn Severity = "warn"

	// SeverityDeny blocks the operation.
	SeverityDeny Severity = "deny"
)

// Policy is an admission rule with its Rego source.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not
	// declare their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for
	// built-ins.
	Source string `json:"source,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is a single policy finding.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// AppID is the application the finding applies to.
	AppID string `json:"app_id,omitempty"`

	// Message is a human-readable description of the finding.
	Message string `json:"message"`

	// Severity is the finding's severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// Result is the outcome of evaluating all enabled policies against one
// admission request.
type Result struct {
	// Allowed is false when any violation carries deny severity.
	Allowed bool `json:"allowed"`

	// Violations lists all findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate. Evaluation
	// failures never block the operation.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Denials returns only the findings that block the operation.
func (r *Result) Denials() []Violation {
	var denials []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityDeny {
			denials = append(denials, v)
		}
	}
	return denials
}

// Input is the document policies evaluate. Rego rules address it as
// input.app, input.operation, and input.context.
type Input struct {
	// App is the application record under admission.
	App *engine.ApplicationRecord `json:"app,omitempty"`

	// Operation is the requested operation, register or update.
	Operation string `json:"operation,omitempty"`

	// Context carries engine-level settings policies may consult.
	Context *Context `json:"context"`
}

// Context provides evaluation-time settings for policies.
type Context struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// AllowedProviders restricts provider ids when non-empty.
	AllowedProviders []string `json:"allowed_providers,omitempty"`
}
