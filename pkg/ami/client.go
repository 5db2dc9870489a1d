/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ami speaks the Asterisk Manager Interface: a line-oriented TCP
// protocol of blank-line-terminated key/value frames. The client keeps one
// authenticated session, serializes commands on it, and reconnects before the
// next command after a drop.
package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
	"github.com/google/uuid"
)

const (
	defaultPort    = 5038
	defaultTimeout = 10 * time.Second

	endCommandMarker = "--END COMMAND--"
)

// Config holds the AMI connection settings.
type Config struct {
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Timeout  models.Duration `json:"timeout,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errHostRequired
	}

	if c.Username == "" {
		return errUsernameRequired
	}

	if c.Password == "" {
		return errPasswordRequired
	}

	if c.Port == 0 {
		c.Port = defaultPort
	}

	if time.Duration(c.Timeout) == 0 {
		c.Timeout = models.Duration(defaultTimeout)
	}

	return nil
}

func (c *Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a serialized AMI session. The mutex admits one command exchange
// at a time because AMI multiplexes responses on a single stream and console
// command output carries no per-line tagging.
type Client struct {
	config Config
	logger logger.Logger

	mu        chan struct{} // single-slot lock, acquirable with ctx
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
}

// NewClient creates an AMI client. It does not connect; call Connect or let
// the first command establish the session.
func NewClient(config *Config, log logger.Logger) *Client {
	c := &Client{
		config: *config,
		logger: log,
		mu:     make(chan struct{}, 1),
	}
	c.mu <- struct{}{}

	return c
}

func (c *Client) lock(ctx context.Context) error {
	select {
	case <-c.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) unlock() {
	c.mu <- struct{}{}
}

// Connect dials and authenticates. It verifies the session with a version
// probe so a bad login surfaces at setup time rather than on the first poll.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()

	if c.connected {
		return nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	if _, err := c.exchangeLocked(ctx, Action{"Action": "Command", "Command": "core show version"}); err != nil {
		return fmt.Errorf("%w: version probe failed: %w", ErrConnectFailed, err)
	}

	return nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout()}

	conn, err := dialer.DialContext(ctx, "tcp", c.config.address())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	reader := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(c.timeout()))

	banner, err := reader.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: reading banner: %w", ErrConnectFailed, err)
	}

	if !strings.HasPrefix(banner, "Asterisk Call Manager") {
		_ = conn.Close()
		return fmt.Errorf("%w: %q", errUnexpectedBanner, strings.TrimSpace(banner))
	}

	c.conn = conn
	c.reader = reader
	c.connected = true

	login := Action{
		"Action":   "Login",
		"Username": c.config.Username,
		"Secret":   c.config.Password,
	}

	resp, err := c.exchangeLocked(ctx, login)
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	if !resp.Success() {
		c.dropLocked()
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Message())
	}

	c.logger.Info().
		Str("address", c.config.address()).
		Msg("Connected to Asterisk Manager Interface")

	return nil
}

// Send executes one action and returns its response frame. A dropped session
// is redialed first; a failure to redial surfaces as a transient error.
func (c *Client) Send(ctx context.Context, action Action) (*Response, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	if !c.connected {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.exchangeLocked(ctx, action)
	if err != nil {
		return nil, err
	}

	if !resp.Success() {
		return resp, fmt.Errorf("%w: %s: %s", ErrActionFailed, action["Action"], resp.Message())
	}

	return resp, nil
}

// Command runs an Asterisk console command and returns its raw output text.
func (c *Client) Command(ctx context.Context, command string) (string, error) {
	resp, err := c.Send(ctx, Action{"Action": "Command", "Command": command})
	if err != nil {
		return "", err
	}

	return resp.OutputText(), nil
}

// Close logs off and tears down the session.
func (c *Client) Close(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()

	if !c.connected {
		return nil
	}

	// Best effort; the PBX closes the socket after Logoff.
	_, _ = c.exchangeLocked(ctx, Action{"Action": "Logoff"})
	c.dropLocked()

	c.logger.Debug().Msg("Disconnected from Asterisk Manager Interface")

	return nil
}

// exchangeLocked writes one action frame and reads frames until the matching
// response arrives, skipping unsolicited events. Must hold the lock.
func (c *Client) exchangeLocked(ctx context.Context, action Action) (*Response, error) {
	actionID := uuid.NewString()
	action["ActionID"] = actionID

	deadline := time.Now().Add(c.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write([]byte(action.encode())); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("%w: write: %w", ErrDisconnected, err)
	}

	for {
		frame, err := c.readFrame()
		if err != nil {
			c.dropLocked()

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, action["Action"])
			}

			return nil, fmt.Errorf("%w: read: %w", ErrDisconnected, err)
		}

		if frame.Headers["ActionID"] != actionID {
			// Unsolicited event or leftover frame from a timed-out command.
			if event := frame.Headers["Event"]; event != "" {
				c.logger.Debug().Str("event", event).Msg("Ignoring unsolicited AMI event")
			}

			continue
		}

		return frame, nil
	}
}

// readFrame consumes one blank-line-terminated frame. Console command output
// arrives either as repeated "Output:" headers (newer Asterisk) or as a
// "Response: Follows" body ended by --END COMMAND-- (older Asterisk); both
// land in Response.Output.
func (c *Client) readFrame() (*Response, error) {
	resp := &Response{Headers: make(map[string]string)}
	sawLine := false

	for {
		raw, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line := strings.TrimRight(raw, "\r\n")

		if line == "" {
			if !sawLine {
				continue
			}

			return resp, nil
		}

		sawLine = true

		if line == endCommandMarker {
			continue
		}

		key, value, found := strings.Cut(line, ": ")
		if !found || strings.Contains(key, " ") {
			// Body line of a Response: Follows block.
			resp.Output = append(resp.Output, line)
			continue
		}

		if key == "Output" {
			resp.Output = append(resp.Output, value)
			continue
		}

		if _, dup := resp.Headers[key]; !dup {
			resp.Headers[key] = value
		}
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}

	c.conn = nil
	c.reader = nil
	c.connected = false
}

func (c *Client) timeout() time.Duration {
	return time.Duration(c.config.Timeout)
}
