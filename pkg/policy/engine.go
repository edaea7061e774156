package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openberth/openberth/pkg/engine"
)

// Engine compiles Rego policies and evaluates them against application
// records before the controller admits a register or update.
type Engine struct {
	mu               sync.RWMutex
	policies         map[string]*compiledPolicy
	allowedProviders []string
	logger           zerolog.Logger
}

// compiledPolicy holds a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		cp, err := compilePolicy(context.Background(), &builtins[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		e.policies[builtins[i].Name] = cp
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// SetAllowedProviders restricts provider ids for subsequent evaluations.
// An empty list disables the restriction.
func (e *Engine) SetAllowedProviders(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowedProviders = ids
}

// EvaluateApp runs all enabled policies against an application record.
// Operation names the admission point, register or update. A policy
// that fails to evaluate is reported as a warning and never blocks.
func (e *Engine) EvaluateApp(ctx context.Context, app *engine.ApplicationRecord, operation string) (*Result, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := &Input{
		App:       app,
		Operation: operation,
		Context: &Context{
			Timestamp:        time.Now(),
			AllowedProviders: e.allowedProviders,
		},
	}

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("app_id", app.ID).
				Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		result.Violations = append(result.Violations, violations...)
	}

	for i := range result.Violations {
		if result.Violations[i].Severity == SeverityDeny {
			result.Allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("app_id", app.ID).
		Str("operation", operation).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Dur("duration", time.Since(startTime)).
		Msg("Admission evaluation completed")

	return result, nil
}

// LoadPolicies loads and compiles policy files from the given paths,
// adding them to the engine. Nothing is added when any policy fails to
// compile.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	staged := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		staged[policies[i].Name] = cp
	}

	e.mu.Lock()
	for name, cp := range staged {
		e.policies[name] = cp
	}
	e.mu.Unlock()

	e.logger.Info().
		Int("count", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded")

	return nil
}

// ReloadPolicies replaces the engine's policy set with the built-ins
// plus the given policies. The running set stays untouched when any
// policy fails to compile.
func (e *Engine) ReloadPolicies(ctx context.Context, policies []Policy) error {
	staged := make(map[string]*compiledPolicy)

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		cp, err := compilePolicy(ctx, &builtins[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		staged[builtins[i].Name] = cp
	}

	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		staged[policies[i].Name] = cp
	}

	e.mu.Lock()
	e.policies = staged
	e.mu.Unlock()

	e.logger.Info().Int("count", len(staged)).Msg("Policies reloaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = true
	e.logger.Info().Str("policy", name).Msg("Policy enabled")

	return nil
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = false
	e.logger.Info().Str("policy", name).Msg("Policy disabled")

	return nil
}

// evaluatePolicy runs a prepared deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, newViolation(cp.policy, d, input))
			}
		}
	}

	return violations, nil
}

// compilePolicy parses a policy module and prepares its deny query.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	if _, err := ast.ParseModule(policy.Name, policy.Rego); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query := fmt.Sprintf("data.%s.deny", extractPackageName(policy.Rego))
	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(policy.Name, policy.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}, nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(regoCode string) string {
	for _, line := range strings.Split(regoCode, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "openberth.policies"
}

// newViolation converts one deny result into a Violation. Results are
// either plain strings or objects with message, severity, and app keys.
func newViolation(policy *Policy, result interface{}, input *Input) Violation {
	violation := Violation{
		Policy:     policy.Name,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	if input.App != nil {
		violation.AppID = input.App.ID
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = parseSeverity(sev, policy.Severity)
		}
		if app, ok := v["app"].(string); ok {
			violation.AppID = app
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// parseSeverity maps a severity string to a known level, falling back
// to the policy default for unknown values.
func parseSeverity(s string, fallback Severity) Severity {
	switch Severity(s) {
	case SeverityInfo, SeverityWarn, SeverityDeny:
		return Severity(s)
	default:
		return fallback
	}
}
