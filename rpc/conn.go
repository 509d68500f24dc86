// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/codec"
)

const tracerName = "github.com/bureau-foundation/authbridge/rpc"

// HandlerFunc answers one incoming call. A returned *Error reaches the
// caller as is; any other error reaches it as CodeInternal.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// CallbackFunc receives one pushed payload. It runs on the read loop:
// it must not block on another call over the same Conn.
type CallbackFunc func(ctx context.Context, data codec.RawMessage)

// Options configures a Conn.
type Options struct {
	Logger *slog.Logger

	// Metrics records call and callback counts. Nil disables.
	Metrics *Metrics

	// TracerProvider creates call spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Conn is one end of an RPC connection over a port. Register handlers
// and callbacks, then run Serve; calls may be made once Serve is
// running.
type Conn struct {
	port       channel.Port
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	nextID atomic.Uint64

	mutex     sync.Mutex
	pending   map[uint64]chan frame
	handlers  map[string]HandlerFunc
	callbacks map[string]CallbackFunc

	done     chan struct{}
	doneOnce sync.Once
}

// New wraps port. The Conn owns the port from here on.
func New(port channel.Port, options Options) *Conn {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := options.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Conn{
		port:       port,
		logger:     logger,
		metrics:    options.Metrics,
		tracer:     provider.Tracer(tracerName),
		propagator: propagation.TraceContext{},
		pending:    make(map[uint64]chan frame),
		handlers:   make(map[string]HandlerFunc),
		callbacks:  make(map[string]CallbackFunc),
		done:       make(chan struct{}),
	}
}

// Handle registers handler for incoming calls to method, replacing any
// earlier registration.
func (c *Conn) Handle(method string, handler HandlerFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[method] = handler
}

// RegisterCallback registers fn for pushed payloads named name.
// Payloads for names with no registration are dropped.
func (c *Conn) RegisterCallback(name string, fn CallbackFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.callbacks[name] = fn
}

// Done is closed once the Conn has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close closes the port. Outstanding calls fail with ErrClosed.
func (c *Conn) Close() error {
	err := c.port.Close()
	c.shutdown()
	return err
}

func (c *Conn) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Serve runs the read loop until the port closes or ctx is canceled,
// which closes the port. Handler contexts derive from ctx and are
// canceled when Serve returns. A normal close returns nil.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ctx, func() { c.port.Close() })
	var handlers sync.WaitGroup
	defer func() {
		stop()
		c.shutdown()
		cancel()
		handlers.Wait()
	}()

	for {
		data, err := c.port.Receive(context.Background())
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiving frame: %w", err)
		}

		var incoming frame
		if err := codec.Unmarshal(data, &incoming); err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
			continue
		}

		switch incoming.Type {
		case frameCall:
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				c.dispatch(ctx, incoming)
			}()
		case frameResult:
			c.deliver(incoming)
		case frameCallback:
			c.runCallback(ctx, incoming)
		default:
			c.logger.Warn("dropping frame of unknown type", "type", incoming.Type)
		}
	}
}

// Call invokes method on the peer with args and decodes the result
// into result (which may be nil to discard it).
func (c *Conn) Call(ctx context.Context, method string, result any, args ...any) (err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "rpc.call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "authbridge"), attribute.String("rpc.method", method)),
	)
	defer func() {
		c.metrics.observeCall(method, callOutcome(err), time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	encodedArgs, err := encodeArgs(args)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}

	id := c.nextID.Add(1)
	reply := make(chan frame, 1)
	c.mutex.Lock()
	select {
	case <-c.done:
		c.mutex.Unlock()
		return fmt.Errorf("rpc %s: %w", method, ErrClosed)
	default:
	}
	c.pending[id] = reply
	c.mutex.Unlock()
	c.metrics.pending(1)
	defer func() {
		c.mutex.Lock()
		delete(c.pending, id)
		c.mutex.Unlock()
		c.metrics.pending(-1)
	}()

	meta := make(map[string]string)
	c.propagator.Inject(ctx, propagation.MapCarrier(meta))
	request, err := codec.Marshal(frame{Type: frameCall, ID: id, Method: method, Args: encodedArgs, Meta: meta})
	if err != nil {
		return fmt.Errorf("rpc %s: encoding call: %w", method, err)
	}
	if err := c.port.Send(ctx, request); err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	c.logger.Debug("rpc call sent", "method", method, "id", id)

	var response frame
	select {
	case response = <-reply:
	case <-c.done:
		// A result that raced the close still counts.
		select {
		case response = <-reply:
		default:
			return fmt.Errorf("rpc %s: %w", method, ErrClosed)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if response.Error != nil {
		return response.Error
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("rpc %s: decoding result: %w", method, err)
		}
	}
	return nil
}

// Invoke pushes payload to the peer's callback registered as name.
func (c *Conn) Invoke(ctx context.Context, name string, payload any) error {
	data, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", name, err)
	}
	message, err := codec.Marshal(frame{Type: frameCallback, Method: name, Data: data})
	if err != nil {
		return fmt.Errorf("encoding %s callback: %w", name, err)
	}
	if err := c.port.Send(ctx, message); err != nil {
		return fmt.Errorf("callback %s: %w", name, err)
	}
	c.metrics.observeCallback(name, "sent")
	return nil
}

func (c *Conn) deliver(response frame) {
	c.mutex.Lock()
	reply, ok := c.pending[response.ID]
	c.mutex.Unlock()
	if !ok {
		// The caller gave up (context canceled) before the result arrived.
		c.logger.Debug("dropping result for unknown call", "id", response.ID)
		return
	}
	reply <- response
}

func (c *Conn) dispatch(ctx context.Context, call frame) {
	ctx = c.propagator.Extract(ctx, propagation.MapCarrier(call.Meta))
	ctx, span := c.tracer.Start(ctx, "rpc.handle "+call.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.system", "authbridge"), attribute.String("rpc.method", call.Method)),
	)
	defer span.End()

	c.mutex.Lock()
	handler, ok := c.handlers[call.Method]
	c.mutex.Unlock()

	response := frame{Type: frameResult, ID: call.ID}
	if !ok {
		response.Error = Errorf(CodeUnknownMethod, "no handler for %q", call.Method)
	} else {
		result, err := c.invokeHandler(ctx, call.Method, handler, Args(call.Args))
		if err != nil {
			response.Error = asError(err)
		} else if response.Data, err = codec.Marshal(result); err != nil {
			response.Error = Errorf(CodeInternal, "encoding result: %v", err)
		}
	}

	outcome := outcomeOK
	if response.Error != nil {
		outcome = outcomeError
		span.SetStatus(codes.Error, response.Error.Error())
		span.SetAttributes(attribute.String("rpc.error_code", response.Error.Code))
	}
	c.metrics.observeHandled(call.Method, outcome)

	data, err := codec.Marshal(response)
	if err != nil {
		c.logger.Error("encoding result frame", "method", call.Method, "error", err)
		return
	}
	if err := c.port.Send(context.Background(), data); err != nil {
		c.logger.Debug("result not delivered", "method", call.Method, "id", call.ID, "error", err)
	}
}

func (c *Conn) invokeHandler(ctx context.Context, method string, handler HandlerFunc, args Args) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("rpc handler panicked",
				"method", method, "panic", recovered, "stack", string(debug.Stack()))
			result, err = nil, Errorf(CodeInternal, "handler for %s panicked", method)
		}
	}()
	return handler(ctx, args)
}

func (c *Conn) runCallback(ctx context.Context, pushed frame) {
	c.mutex.Lock()
	callback, ok := c.callbacks[pushed.Method]
	c.mutex.Unlock()
	if !ok {
		c.metrics.observeCallback(pushed.Method, "dropped")
		c.logger.Debug("no callback registered", "name", pushed.Method)
		return
	}
	c.metrics.observeCallback(pushed.Method, "received")

	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("callback panicked", "name", pushed.Method, "panic", recovered)
		}
	}()
	callback(ctx, pushed.Data)
}

// asError maps a handler error onto the wire error.
func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

func callOutcome(err error) string {
	var rpcErr *Error
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &rpcErr):
		return outcomeError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeTransport
	}
}
