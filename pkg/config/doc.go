// Package config parses application manifests for the CLI.
//
// # Overview
//
// A manifest names an application and selects, by id, the instance-config
// mapper that produces its bootstrap payload and the provider that deploys
// it. The raw config blocks inside stay untyped here; the selected
// components validate them against their own schemas at registration.
//
// Three source formats feed the same ParseResult:
//
//   - CUE (.cue): unified against an embedded schema, so shape problems
//     carry file, line, and column
//   - JSON (.json): a single manifest object or an array of them
//   - Starlark (.star): evaluated with a timeout; the script's global
//     app (one manifest) or apps (a list) becomes the result
//
// # Usage Example
//
//	parser := config.NewParser()
//
//	result, err := parser.ParseFile(ctx, "web.cue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := result.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, manifest := range result.Manifests {
//	    record := manifest.ToRecord()
//	    // register with the controller
//	}
//
// # Manifest Structure
//
// The CUE form of a single application:
//
//	app: {
//	    id: "web"
//	    instance: {
//	        id: "compose"
//	        config: {
//	            services: web: image: "nginx:1.27"
//	        }
//	    }
//	    provider: {
//	        id: "docker"
//	        config: {
//	            image: "nginx:1.27"
//	        }
//	    }
//	}
//
// A Starlark script generating several applications:
//
//	def make_app(i):
//	    return {
//	        "id": "worker-" + str(i),
//	        "instance": {"id": "compose", "config": {"services": {...}}},
//	        "provider": {"id": "docker", "config": {"image": "worker:latest"}},
//	    }
//
//	apps = [make_app(i) for i in range(3)]
//
// # Error Handling
//
// Parsing problems come back as a ValidationError list on the ParseResult,
// each with as much location information as the format provides:
//
//	ValidationError{
//	    File:     "web.cue",
//	    Line:     12,
//	    Column:   5,
//	    Path:     "app.provider.id",
//	    Message:  "failed on the \"required\" rule",
//	    Severity: "error",
//	}
//
// I/O failures and unsupported extensions are returned as ordinary errors;
// only document-level problems land in the list.
//
// # Starlark Sandbox
//
// Scripts get no filesystem or network access, print output is routed to
// the debug log, and evaluation is cancelled after a timeout (default 30
// seconds).
package config
