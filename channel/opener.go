// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/authbridge/lib/clock"
)

// DefaultHandshakeTimeout applies when Opener.HandshakeTimeout is zero.
const DefaultHandshakeTimeout = 10 * time.Second

// ServeFunc runs a module over an established port. It should return
// once the port is closed or ctx is canceled.
type ServeFunc func(ctx context.Context, port Port) error

// SandboxOptions enables bubblewrap wrapping for exec:// origins.
type SandboxOptions struct {
	// BwrapPath overrides bwrap discovery.
	BwrapPath string

	// ExtraBinds are "source[:dest[:mode]]" mounts.
	ExtraBinds []string

	// Env is the module's entire environment inside the sandbox.
	Env map[string]string
}

// Opener creates channels. The zero value opens ws and exec origins
// with default settings; mem origins need Modules.
type Opener struct {
	// HandshakeTimeout bounds the wait for the module's ready frame.
	HandshakeTimeout time.Duration

	// Modules maps mem://<name> origins to in-process modules.
	Modules map[string]ServeFunc

	// Sandbox, when set, wraps exec:// modules in bwrap.
	Sandbox *SandboxOptions

	// Env is the environment of exec:// modules when not sandboxed.
	// Nil inherits the host's environment.
	Env []string

	// Stderr receives exec:// module stderr. Nil discards it.
	Stderr io.Writer

	// HostOrigin is sent as the Origin header to websocket modules.
	HostOrigin string

	// Dialer dials websocket modules. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Channel is an open pipe to one isolated module instance. The
// facade that opened it owns it exclusively.
type Channel struct {
	origin  string
	port    Port
	destroy func() error

	closeOnce sync.Once
	closeErr  error
}

// Origin returns the origin the channel was opened with.
func (c *Channel) Origin() string { return c.origin }

// Port returns the host's end of the pipe.
func (c *Channel) Port() Port { return c.port }

// Close releases the port, which fails any outstanding calls, and
// destroys the isolated context. It is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		portErr := c.port.Close()
		var destroyErr error
		if c.destroy != nil {
			destroyErr = c.destroy()
		}
		c.closeErr = errors.Join(portErr, destroyErr)
	})
	return c.closeErr
}

// Open starts (or connects to) the module at origin and completes the
// handshake.
func (o *Opener) Open(ctx context.Context, origin string) (*Channel, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin %q: %w", origin, err)
	}

	logger := o.logger().With("origin", redactOrigin(parsed))
	logger.Debug("opening channel")

	var channel *Channel
	switch parsed.Scheme {
	case "mem":
		channel, err = o.openMemory(ctx, parsed, logger)
	case "exec":
		channel, err = o.openProcess(ctx, parsed, logger)
	case "ws", "wss":
		channel, err = o.openWebSocket(ctx, parsed, logger)
	default:
		return nil, fmt.Errorf("unsupported origin scheme %q", parsed.Scheme)
	}
	if err != nil {
		logger.Warn("channel open failed", "error", err)
		return nil, err
	}
	channel.origin = origin
	logger.Info("channel open")
	return channel, nil
}

func (o *Opener) clock() clock.Clock {
	if o.Clock == nil {
		return clock.Real()
	}
	return o.Clock
}

func (o *Opener) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Opener) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return o.HandshakeTimeout
}

// awaitReady runs receive in the background and waits for a ready
// frame, the handshake deadline, or ctx. On timeout or cancellation,
// abort must unblock receive; awaitReady waits for it to return.
func (o *Opener) awaitReady(ctx context.Context, receive func() ([]byte, error), abort func()) error {
	deadline := o.clock().After(o.handshakeTimeout())
	result := make(chan error, 1)
	go func() {
		data, err := receive()
		if err != nil {
			result <- fmt.Errorf("waiting for ready: %w", err)
			return
		}
		result <- expectFrame(data, frameReady)
	}()

	select {
	case err := <-result:
		return err
	case <-deadline:
		abort()
		<-result
		return ErrHandshakeTimeout
	case <-ctx.Done():
		abort()
		<-result
		return ctx.Err()
	}
}

// redactOrigin drops userinfo and query arguments from log output.
func redactOrigin(origin *url.URL) string {
	redacted := *origin
	redacted.User = nil
	redacted.RawQuery = ""
	return redacted.String()
}
