// Package instanceconfig provides the built-in instance-config mappers.
// Each mapper validates a raw JSON configuration against its schema,
// parses it into a typed document, and renders the backend-agnostic
// bootstrap payload handed to deployment providers: a docker-compose
// document for container backends, a cloud-config document for cloud
// instances.
package instanceconfig
