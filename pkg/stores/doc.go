// Package stores provides persistence layer implementations for OpenBerth.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// CRUD operations for application records and their attached instance
// info. Attaching instance info is a compare-and-set on the application
// id, which is the atomicity boundary the lifecycle controller relies on.
package stores
