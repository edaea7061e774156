package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in admission policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		emptyConfigsPolicy(),
		providerAllowlistPolicy(),
		privilegedComposePolicy(),
	}
}

// emptyConfigsPolicy rejects applications whose instance or provider
// config carries no settings at all.
func emptyConfigsPolicy() Policy {
	return Policy{
		Name:        "empty-configs",
		Description: "Rejects applications with empty instance or provider configs",
		Severity:    SeverityDeny,
		Enabled:     true,
		Tags:        []string{"configs", "admission"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openberth.policies.configs

import rego.v1

deny contains violation if {
	input.app
	not has_settings(input.app.instance_config.config)
	violation := {
		"message": sprintf("app %s has an empty instance config", [input.app.id]),
		"severity": "deny",
	}
}

deny contains violation if {
	input.app
	not has_settings(input.app.provider_config.config)
	violation := {
		"message": sprintf("app %s has an empty provider config", [input.app.id]),
		"severity": "deny",
	}
}

has_settings(config) if {
	is_object(config)
	count(object.keys(config)) > 0
}`,
	}
}

// providerAllowlistPolicy restricts provider ids when the engine is
// configured with an allowlist. Without one the policy stays silent.
func providerAllowlistPolicy() Policy {
	return Policy{
		Name:        "provider-allowlist",
		Description: "Restricts provider ids to the configured allowlist",
		Severity:    SeverityDeny,
		Enabled:     true,
		Tags:        []string{"providers", "admission"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openberth.policies.providers

import rego.v1

deny contains violation if {
	input.app
	allowed := input.context.allowed_providers
	count(allowed) > 0
	not input.app.provider_config.id in allowed
	violation := {
		"message": sprintf("provider %s is not in the configured allowlist", [input.app.provider_config.id]),
		"severity": "deny",
	}
}`,
	}
}

// privilegedComposePolicy rejects compose documents that ask for
// privileged containers.
func privilegedComposePolicy() Policy {
	return Policy{
		Name:        "privileged-compose",
		Description: "Rejects compose services that request privileged mode",
		Severity:    SeverityDeny,
		Enabled:     true,
		Tags:        []string{"compose", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openberth.policies.compose

import rego.v1

deny contains violation if {
	input.app.instance_config.id == "compose"
	some name, service in input.app.instance_config.config.services
	service.privileged == true
	violation := {
		"message": sprintf("compose service %s must not run privileged", [name]),
		"severity": "deny",
	}
}`,
	}
}
