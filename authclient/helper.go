// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/codec"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/protocol"
	"github.com/bureau-foundation/authbridge/rpc"
)

// Options configures a Helper.
type Options struct {
	// Host carries the module origin and the fallback values returned
	// when the module is too old to report its own. An empty
	// Host.Origin disables the helper.
	Host config.HostConfig

	// Opener opens the channel. Nil builds one from Host.
	Opener *channel.Opener

	Metrics        *rpc.Metrics
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

// Helper is the host's handle on one authentication module. It owns
// the channel it opens; Close releases it.
type Helper struct {
	host           config.HostConfig
	opener         *channel.Opener
	metrics        *rpc.Metrics
	tracerProvider trace.TracerProvider
	logger         *slog.Logger

	group singleflight.Group

	mutex   sync.Mutex
	current *session
	closed  bool

	// publishMutex serializes snapshot updates and their delivery.
	publishMutex sync.Mutex
	snapshot     atomic.Pointer[Snapshot]
	statusSubs   subscribers[authschema.LoginStatus]
	uiSubs       subscribers[authschema.LoginUIStatus]
}

// session is one open channel with its negotiated version.
type session struct {
	channel *channel.Channel
	conn    *rpc.Conn
	version int
	cancel  context.CancelFunc
	served  chan struct{}
}

func (s *session) close() error {
	err := s.channel.Close()
	s.cancel()
	<-s.served
	return err
}

// New returns a Helper. Nothing is opened until the first call.
func New(options Options) *Helper {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opener := options.Opener
	if opener == nil {
		opener = &channel.Opener{
			HandshakeTimeout: options.Host.HandshakeTimeout,
			HostOrigin:       options.Host.HostOrigin,
			Logger:           logger,
		}
	}
	helper := &Helper{
		host:           options.Host,
		opener:         opener,
		metrics:        options.Metrics,
		tracerProvider: options.TracerProvider,
		logger:         logger,
	}
	helper.snapshot.Store(&Snapshot{UI: authschema.Hidden()})
	return helper
}

// Enabled reports whether an origin is configured.
func (h *Helper) Enabled() bool { return h.host.Origin != "" }

// connect returns the open session, opening one if needed. It returns
// nil with no error when no origin is configured.
func (h *Helper) connect(ctx context.Context) (*session, error) {
	if !h.Enabled() {
		return nil, nil
	}
	h.mutex.Lock()
	closed, current := h.closed, h.current
	h.mutex.Unlock()
	if closed {
		return nil, channel.ErrClosed
	}
	if current != nil {
		return current, nil
	}

	// The handshake outlives any single caller's context: other callers
	// may be waiting on it.
	results := h.group.DoChan("connect", func() (any, error) {
		return h.open(context.WithoutCancel(ctx))
	})
	select {
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Helper) open(ctx context.Context) (*session, error) {
	h.mutex.Lock()
	if h.current != nil {
		current := h.current
		h.mutex.Unlock()
		return current, nil
	}
	h.mutex.Unlock()

	moduleChannel, err := h.opener.Open(ctx, h.host.Origin)
	if err != nil {
		return nil, fmt.Errorf("opening auth module: %w", err)
	}
	conn := rpc.New(moduleChannel.Port(), rpc.Options{
		Logger:         h.logger,
		Metrics:        h.metrics,
		TracerProvider: h.tracerProvider,
	})
	conn.RegisterCallback(protocol.CallbackLoginStatus, h.receiveStatus)
	conn.RegisterCallback(protocol.CallbackLoginUIStatus, h.receiveUIStatus)

	serveContext, cancel := context.WithCancel(context.Background())
	opened := &session{channel: moduleChannel, conn: conn, cancel: cancel, served: make(chan struct{})}
	go h.serve(serveContext, opened)

	opened.version = protocol.Negotiate(ctx, conn, h.logger)
	if protocol.Supports(opened.version, protocol.StatusCallbacks) {
		h.subscribe(ctx, opened)
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		opened.close()
		return nil, channel.ErrClosed
	}
	h.current = opened
	h.mutex.Unlock()

	h.publish(func(snapshot *Snapshot) { snapshot.Version = opened.version }, false, false)
	h.logger.Info("auth module connected", "version", opened.version)
	return opened, nil
}

// subscribe asks the module to push both status streams. A module
// that refuses keeps working; the cached status just goes stale.
func (h *Helper) subscribe(ctx context.Context, current *session) {
	for _, subscription := range []struct{ method, callback string }{
		{protocol.MethodAddLoginStatusCallback, protocol.CallbackLoginStatus},
		{protocol.MethodAddLoginUIStatusCallback, protocol.CallbackLoginUIStatus},
	} {
		if err := current.conn.Call(ctx, subscription.method, nil, subscription.callback); err != nil {
			h.logger.Warn("status subscription failed", "method", subscription.method, "error", err)
		}
	}
}

// serve runs the read loop. When the channel dies on its own the
// session is dropped so the next call opens a new one.
func (h *Helper) serve(ctx context.Context, current *session) {
	defer close(current.served)
	if err := current.conn.Serve(ctx); err != nil {
		h.logger.Warn("auth module connection failed", "error", err)
	}

	h.mutex.Lock()
	dropped := h.current == current
	if dropped {
		h.current = nil
	}
	h.mutex.Unlock()
	if dropped {
		h.logger.Warn("auth module channel closed, reconnecting on next call")
		current.channel.Close()
		current.cancel()
	}
}

func (h *Helper) receiveStatus(_ context.Context, data codec.RawMessage) {
	var update authschema.LoginStatus
	if err := codec.Unmarshal(data, &update); err != nil {
		h.logger.Warn("dropping undecodable login status", "error", err)
		return
	}
	h.publish(func(snapshot *Snapshot) { snapshot.Status = snapshot.Status.Merge(update) }, true, false)
}

func (h *Helper) receiveUIStatus(_ context.Context, data codec.RawMessage) {
	var status authschema.LoginUIStatus
	if err := codec.Unmarshal(data, &status); err != nil {
		h.logger.Warn("dropping undecodable UI status", "error", err)
		return
	}
	h.publish(func(snapshot *Snapshot) { snapshot.UI = status }, false, true)
}

// publish stores a modified copy of the snapshot and notifies the
// subscribers of the streams that changed.
func (h *Helper) publish(modify func(*Snapshot), status, ui bool) {
	h.publishMutex.Lock()
	defer h.publishMutex.Unlock()
	next := *h.snapshot.Load()
	modify(&next)
	h.snapshot.Store(&next)
	if status {
		h.statusSubs.notify(next.Status)
	}
	if ui {
		h.uiSubs.notify(next.UI)
	}
}

// Snapshot returns the cached view of the module.
func (h *Helper) Snapshot() *Snapshot { return h.snapshot.Load() }

// AuthData returns the cached identity without a round trip.
func (h *Helper) AuthData() *authschema.AuthData { return h.snapshot.Load().AuthData() }

// OnLoginStatus calls fn with the accumulated login status now and
// after every change. fn runs on the channel's read loop: it must not
// call back into the Helper.
func (h *Helper) OnLoginStatus(fn func(authschema.LoginStatus)) (unsubscribe func()) {
	h.publishMutex.Lock()
	defer h.publishMutex.Unlock()
	id := h.statusSubs.add(fn)
	fn(h.snapshot.Load().Status)
	return func() { h.statusSubs.remove(id) }
}

// OnLoginUIStatus calls fn with the current page now and after every
// change, under the same rules as OnLoginStatus.
func (h *Helper) OnLoginUIStatus(fn func(authschema.LoginUIStatus)) (unsubscribe func()) {
	h.publishMutex.Lock()
	defer h.publishMutex.Unlock()
	id := h.uiSubs.add(fn)
	fn(h.snapshot.Load().UI)
	return func() { h.uiSubs.remove(id) }
}

// Version returns the negotiated protocol version, opening the channel
// if needed. It is 0 when no origin is configured.
func (h *Helper) Version(ctx context.Context) (int, error) {
	current, err := h.connect(ctx)
	if err != nil || current == nil {
		return 0, err
	}
	return current.version, nil
}

// Close releases the channel and destroys the module context. Later
// calls fail with channel.ErrClosed.
func (h *Helper) Close() error {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return nil
	}
	h.closed = true
	current := h.current
	h.current = nil
	h.mutex.Unlock()

	if current == nil {
		return nil
	}
	if err := current.close(); err != nil && !errors.Is(err, channel.ErrClosed) {
		return err
	}
	return nil
}

// invoke calls the method named after capability when the module
// supports it. Otherwise, or with no origin, it returns fallback.
func invoke[T any](ctx context.Context, h *Helper, capability protocol.Capability, fallback T, args ...any) (T, error) {
	current, err := h.connect(ctx)
	if err != nil {
		return fallback, err
	}
	if current == nil || !protocol.Supports(current.version, capability) {
		return fallback, nil
	}
	result := fallback
	if err := current.conn.Call(ctx, string(capability), &result, args...); err != nil {
		return fallback, err
	}
	return result, nil
}

// derivesStatus reports whether the module pushes no status, so the
// helper must derive it from call results.
func (h *Helper) derivesStatus() bool {
	return !protocol.Supports(h.snapshot.Load().Version, protocol.StatusCallbacks)
}
