// Package ssh provides the SSH/SFTP transport remote-host providers run
// on: command execution and payload upload against a single managed
// connection.
package ssh

import (
	"context"
	"errors"
	"os"
	"time"
)

// Transport is the remote-operations surface the sshhost provider
// consumes. Implementations manage one connection; callers Connect
// before use and Disconnect when done.
type Transport interface {
	// Connect establishes the SSH connection. Connecting an already
	// connected transport verifies the connection and reuses it.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and releases all resources.
	Disconnect() error

	// IsConnected reports whether the transport has an active
	// connection.
	IsConnected() bool

	// HealthCheck verifies the connection is alive and responsive.
	HealthCheck(ctx context.Context) error

	// Execute runs a command on the remote host and returns trimmed
	// stdout and stderr. A non-zero exit is returned as a
	// *TransportError carrying the exit code.
	Execute(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// Upload writes content to remotePath via SFTP, creating parent
	// directories and applying mode when non-zero.
	Upload(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error

	// GetConnectionInfo returns details about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port number.
	Port int

	// User is the SSH username.
	User string

	// ConnectedAt is when the connection was established.
	ConnectedAt time.Time

	// LastActivity is when the connection was last used.
	LastActivity time.Time
}

// TransportError classifies a failed transport operation so callers can
// decide whether to retry.
type TransportError struct {
	// Op is the operation that failed (e.g. "connect", "execute",
	// "upload").
	Op string

	// Err is the underlying error.
	Err error

	// ExitCode is the remote exit code when a command ran but exited
	// non-zero, 0 otherwise.
	ExitCode int

	// IsTemporary indicates the failure may clear on retry.
	IsTemporary bool

	// IsAuthError indicates the host rejected our credentials.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// IsTemporary reports whether err is a transport failure worth retrying.
func IsTemporary(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsTemporary
}

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsAuthError
}

// ExitStatus extracts the remote exit code from an Execute error. ok is
// false when the command never ran or the failure was not exit related.
func ExitStatus(err error) (code int, ok bool) {
	var te *TransportError
	if errors.As(err, &te) && te.ExitCode != 0 {
		return te.ExitCode, true
	}
	return 0, false
}
