// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"
)

func (o *Opener) openWebSocket(ctx context.Context, origin *url.URL, logger *slog.Logger) (*Channel, error) {
	dialer := o.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if o.HostOrigin != "" {
		header.Set("Origin", o.HostOrigin)
	}

	conn, response, err := dialer.DialContext(ctx, origin.String(), header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing module: %w (status %d)", err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing module: %w", err)
	}

	receive := func() ([]byte, error) {
		_, data, err := conn.ReadMessage()
		return data, err
	}
	if err := o.awaitReady(ctx, receive, func() { conn.Close() }); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(frameInitPort)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending init_port: %w", err)
	}
	return &Channel{port: newWebSocketPort(conn, logger)}, nil
}

// WebSocketHandler serves a module to websocket hosts. Each upgraded
// connection runs its own Serve call for as long as the host keeps the
// channel open.
type WebSocketHandler struct {
	Serve ServeFunc

	// AllowedOrigins lists the host origins accepted in the Origin
	// header. Empty applies the same-host check; "*" accepts any.
	AllowedOrigins []string

	Logger *slog.Logger
}

func (h *WebSocketHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("remote", request.RemoteAddr, "host_origin", request.Header.Get("Origin"))

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Info("websocket upgrade rejected", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(frameReady)); err != nil {
		logger.Warn("sending ready failed", "error", err)
		conn.Close()
		return
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Info("host left before init_port", "error", err)
		conn.Close()
		return
	}
	if err := expectFrame(data, frameInitPort); err != nil {
		logger.Warn("bad handshake", "error", err)
		conn.Close()
		return
	}

	port := newWebSocketPort(conn, logger)
	defer port.Close()
	logger.Info("websocket channel established")
	if err := h.Serve(request.Context(), port); err != nil {
		logger.Warn("module serve ended with error", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(request *http.Request) bool {
	origin := request.Header.Get("Origin")
	if len(h.AllowedOrigins) == 0 {
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		return err == nil && parsed.Host == request.Host
	}
	return slices.Contains(h.AllowedOrigins, "*") || slices.Contains(h.AllowedOrigins, origin)
}
