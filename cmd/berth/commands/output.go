package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/policy"
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// appStatusWord renders the lifecycle state of a record for listings.
func appStatusWord(app *engine.ApplicationRecordFull) string {
	if app.Running() {
		return fmt.Sprintf("running (%s)", app.InstanceInfo.Status)
	}
	return "stopped"
}

// reportViolations prints every policy finding and returns an error when
// any of them denies the operation.
func reportViolations(appID, operation string, result *policy.Result) error {
	for _, v := range result.Violations {
		fmt.Fprintf(os.Stderr, "policy %s [%s]: %s\n", v.Policy, v.Severity, v.Message)
	}
	if !result.Allowed {
		return fmt.Errorf("application %s denied by policy on %s (%d denial(s))",
			appID, operation, len(result.Denials()))
	}
	return nil
}
