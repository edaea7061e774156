// Package dockerhost deploys applications as containers on a Docker
// Engine. The bootstrap payload is delivered to the container through the
// BOOTSTRAP_CONFIG environment variable; images that understand compose
// or cloud-config documents pick it up from there.
package dockerhost
