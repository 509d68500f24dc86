// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds the drain of in-flight requests when
// HTTPServerConfig.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:7420". Port 0
	// lets the OS choose; Addr reports the result.
	Address string

	Handler http.Handler

	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// HTTPServer serves one handler on a TCP listener until its context
// ends, then drains in-flight requests.
//
// Websocket channels are hijacked out of the server, so the drain does
// not wait for them. Their Serve calls see the request context, which
// derives from the one given to Serve, end.
type HTTPServer struct {
	config HTTPServerConfig
	ready  chan struct{}
	addr   net.Addr
}

// NewHTTPServer validates config and returns a server that is not yet
// listening.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	var missing []error
	if config.Address == "" {
		missing = append(missing, errors.New("address is required"))
	}
	if config.Handler == nil {
		missing = append(missing, errors.New("handler is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &HTTPServer{config: config, ready: make(chan struct{})}, nil
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address. Valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve listens and serves until ctx ends. It returns nil after a
// clean drain, or the listen, serve, or shutdown error.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	logger := s.config.Logger.With("address", s.addr.String())
	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	drained := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		logger.Info("http server shutting down")
		shutdownContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		drained <- server.Shutdown(shutdownContext)
	})
	defer stop()

	logger.Info("http server listening")
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; the drain finishes later.
	if err := <-drained; err != nil {
		logger.Error("http server shutdown failed", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
