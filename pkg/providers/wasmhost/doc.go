// Package wasmhost loads out-of-tree provider plug-ins compiled to
// WebAssembly. Each plug-in ships a manifest.yaml next to its .wasm module
// declaring name, version, entrypoint, checksum, and the JSON schemas for
// its config and ref documents; the module itself validates the documents
// it is handed. The Bridge adapts the module's exported provider_deploy,
// provider_get_info, and provider_destroy functions to the same adapter
// surface the in-tree backends present, so a WASM provider registers into
// the controller like any other.
package wasmhost
