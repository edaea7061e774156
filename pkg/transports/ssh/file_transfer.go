package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Upload writes content to remotePath via SFTP. Parent directories are
// created as needed; mode is applied when non-zero. Remote paths are
// POSIX paths regardless of the local platform.
func (c *Client) Upload(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	startTime := time.Now()

	conn, err := c.sshConn()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	defer sftpClient.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("failed to create remote directory %s: %w", dir, err),
			}
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}

	written, err := copyWithContext(ctx, remoteFile, bytes.NewReader(content))
	if err != nil {
		_ = remoteFile.Close()
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to write remote file: %w", err),
			IsTemporary: true,
		}
	}

	// Close flushes; a failed close is a failed write.
	if err := remoteFile.Close(); err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to finalize remote file: %w", err),
			IsTemporary: true,
		}
	}

	if mode != 0 {
		if err := sftpClient.Chmod(remotePath, mode); err != nil {
			return &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("failed to set mode on %s: %w", remotePath, err),
			}
		}
	}

	log.Debug().
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file uploaded")

	return nil
}

// copyWithContext copies src to dst in chunks, aborting when the context
// is cancelled mid-transfer.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
