package ssh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over a single managed SSH connection.
type Client struct {
	config *Config

	mu          sync.RWMutex
	conn        *ssh.Client
	connected   bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

var _ Transport = (*Client)(nil)

// NewClient creates an SSH transport client. The connection is not
// established until Connect is called.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection to the remote host.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.conn != nil {
		// Already connected, verify the connection is still alive.
		if err := c.healthCheckLocked(); err == nil {
			return nil
		}
		log.Warn().Str("host", c.config.Host).Msg("existing connection is dead, reconnecting")
		_ = c.conn.Close()
	}

	clientConfig, err := c.config.BuildClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	// Dial in a goroutine so the context can interrupt the attempt.
	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case <-ctx.Done():
		return &TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return classifyDialError(err)
	case conn := <-connChan:
		c.conn = conn
		c.connected = true
		c.connectedAt = time.Now()
		c.lastUsedAt = time.Now()

		if c.config.KeepAliveInterval > 0 {
			go c.keepAlive()
		}

		log.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// classifyDialError splits credential rejections from network failures.
func classifyDialError(err error) *TransportError {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsAuthError: true,
		}
	}
	return &TransportError{
		Op:          "connect",
		Err:         err,
		IsTemporary: true,
	}
}

// Disconnect closes the SSH connection and releases all resources.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	err := c.conn.Close()
	c.conn = nil
	c.connected = false

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsConnected reports whether the transport has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.conn == nil {
		return &TransportError{
			Op:  "healthcheck",
			Err: fmt.Errorf("not connected"),
		}
	}
	return c.healthCheckLocked()
}

// healthCheckLocked runs the actual check; the caller holds the lock.
func (c *Client) healthCheckLocked() error {
	session, err := c.conn.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	return nil
}

// keepAlive sends periodic keep-alive requests so idle connections
// survive aggressive NAT timeouts.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	retries := 0
	for range ticker.C {
		c.mu.RLock()
		conn := c.conn
		connected := c.connected
		c.mu.RUnlock()

		if !connected || conn == nil {
			return
		}

		_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			retries++
			log.Warn().Err(err).Int("retries", retries).Msg("keep-alive failed")
			if retries >= c.config.MaxKeepAliveRetries {
				log.Error().Str("host", c.config.Host).Msg("keep-alive failed too many times, connection may be dead")
				return
			}
			continue
		}

		retries = 0
		c.mu.Lock()
		c.lastUsedAt = time.Now()
		c.mu.Unlock()
	}
}

// GetConnectionInfo returns information about the current connection.
func (c *Client) GetConnectionInfo() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

// sshConn returns the underlying connection for executor and transfer
// use, recording the activity.
func (c *Client) sshConn() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil, &TransportError{
			Op:  "connection",
			Err: fmt.Errorf("not connected"),
		}
	}

	c.lastUsedAt = time.Now()
	return c.conn, nil
}
