package ssh

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Execute runs a command on the remote host and returns trimmed stdout
// and stderr. The configured CommandTimeout bounds the run in addition
// to the caller's context.
func (c *Client) Execute(ctx context.Context, cmd string) (string, string, error) {
	startTime := time.Now()

	conn, err := c.sshConn()
	if err != nil {
		return "", "", err
	}

	session, err := conn.NewSession()
	if err != nil {
		return "", "", &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	log.Debug().Str("command", cmd).Msg("executing command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		// Give the remote process a chance to exit cleanly before
		// killing it.
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", cmd).
		Int("stdout_len", len(stdout)).
		Int("stderr_len", len(stderr)).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			// Command ran but returned a non-zero exit code.
			return stdout, stderr, &TransportError{
				Op:       "execute",
				Err:      fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
				ExitCode: exitErr.ExitStatus(),
			}
		}
		return stdout, stderr, &TransportError{
			Op:          "execute",
			Err:         execErr,
			IsTemporary: true,
		}
	}

	return stdout, stderr, nil
}
