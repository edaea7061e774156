// Package policy enforces admission rules over application records
// using Open Policy Agent's Rego language.
//
// Policies run before the controller registers or updates an
// application. Each policy contributes deny findings; a finding at
// deny severity blocks the operation, warn and info findings are
// reported but do not block. A policy that fails to evaluate is
// surfaced as a warning so a broken rule never takes admission down.
//
// # Usage
//
// Creating an engine and checking a record:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluateApp(ctx, record, "register")
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    for _, v := range result.Denials() {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// Loading custom policies from files or directories:
//
//	err = eng.LoadPolicies(ctx, []string{"/etc/berth/policies"})
//
// # Built-in Policies
//
// Three policies are always loaded:
//
//  1. empty-configs - rejects apps whose instance or provider config
//     carries no settings
//  2. provider-allowlist - restricts provider ids when the engine is
//     configured with SetAllowedProviders
//  3. privileged-compose - rejects compose services that request
//     privileged mode
//
// # Custom Policies
//
// Custom policies are Rego modules whose deny rule yields strings or
// objects with message, severity, and app keys:
//
//	package berth.policies.regions
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.app.provider_config.id == "aws"
//	    not input.app.provider_config.config.region in ["eu-west-1", "eu-central-1"]
//	    violation := {
//	        "message": "aws apps must deploy to an approved region",
//	        "severity": "deny",
//	    }
//	}
//
// The evaluation input carries input.app (the application record),
// input.operation (register or update), and input.context with the
// evaluation timestamp and the configured provider allowlist.
//
// # Hot Reload
//
// The loader watches policy paths and reapplies them after a short
// debounce:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.ReloadPolicies(ctx, policies)
//	})
//
// Reloading is atomic: when any policy fails to compile the running
// set stays in place.
package policy
