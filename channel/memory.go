// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// memoryHandshake is the bootstrap exchange for in-process modules:
// the module's ready frame, then the host's init_port frame carrying
// the module's end of a fresh pipe as a Go value.
type memoryHandshake struct {
	toHost   chan []byte
	toModule chan memoryInit
}

type memoryInit struct {
	frame []byte
	port  Port
}

func (o *Opener) openMemory(ctx context.Context, origin *url.URL, logger *slog.Logger) (*Channel, error) {
	name := origin.Host
	serve, ok := o.Modules[name]
	if !ok {
		return nil, fmt.Errorf("no in-process module registered as %q", name)
	}

	handshake := memoryHandshake{
		toHost:   make(chan []byte, 1),
		toModule: make(chan memoryInit, 1),
	}
	moduleContext, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := acceptMemory(moduleContext, handshake, serve); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("in-process module failed", "error", err)
		}
	}()
	destroy := func() error {
		cancel()
		<-done
		return nil
	}

	receive := func() ([]byte, error) {
		select {
		case frame := <-handshake.toHost:
			return frame, nil
		case <-done:
			return nil, errors.New("module exited before ready")
		}
	}
	if err := o.awaitReady(ctx, receive, func() { cancel() }); err != nil {
		destroy()
		return nil, err
	}

	hostPort, modulePort := Pipe()
	handshake.toModule <- memoryInit{frame: encodeFrame(frameInitPort), port: modulePort}
	return &Channel{port: hostPort, destroy: destroy}, nil
}

// acceptMemory is the module side of the in-process handshake.
func acceptMemory(ctx context.Context, handshake memoryHandshake, serve ServeFunc) error {
	handshake.toHost <- encodeFrame(frameReady)

	var init memoryInit
	select {
	case init = <-handshake.toModule:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := expectFrame(init.frame, frameInitPort); err != nil {
		return err
	}
	defer init.port.Close()
	return serve(ctx, init.port)
}
