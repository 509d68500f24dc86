// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by every Port operation after either end
	// has been closed. Errors caused by the peer going away wrap it.
	ErrClosed = errors.New("channel closed")

	// ErrHandshakeTimeout is returned by Open when the module does not
	// signal ready in time.
	ErrHandshakeTimeout = errors.New("channel handshake timed out")
)

// Port is one end of a message pipe. Send and Receive may be called
// concurrently with each other; concurrent Sends are serialized and
// each message is delivered whole.
type Port interface {
	// Send delivers one message. The slice may be reused once Send
	// returns.
	Send(ctx context.Context, message []byte) error

	// Receive returns the next message in order.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the port. The peer's pending and future
	// operations fail with ErrClosed. Close is idempotent.
	Close() error
}

// memoryBuffer is how many messages a memory port queues before Send
// blocks.
const memoryBuffer = 64

// Pipe returns two connected in-memory ports.
func Pipe() (Port, Port) {
	left := &pipeEnd{messages: make(chan []byte, memoryBuffer), closed: make(chan struct{})}
	right := &pipeEnd{messages: make(chan []byte, memoryBuffer), closed: make(chan struct{})}
	return &memoryPort{local: left, remote: right}, &memoryPort{local: right, remote: left}
}

// pipeEnd is the inbound queue of one side and its closed signal.
type pipeEnd struct {
	messages  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (e *pipeEnd) close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

type memoryPort struct {
	local  *pipeEnd
	remote *pipeEnd
}

func (p *memoryPort) Send(ctx context.Context, message []byte) error {
	select {
	case <-p.local.closed:
		return ErrClosed
	case <-p.remote.closed:
		return ErrClosed
	default:
	}

	copied := append([]byte(nil), message...)
	select {
	case p.remote.messages <- copied:
		return nil
	case <-p.local.closed:
		return ErrClosed
	case <-p.remote.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *memoryPort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message := <-p.local.messages:
		return message, nil
	case <-p.local.closed:
		return nil, ErrClosed
	case <-p.remote.closed:
		// Messages the peer sent before closing are still delivered.
		select {
		case message := <-p.local.messages:
			return message, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *memoryPort) Close() error {
	p.local.close()
	return nil
}
