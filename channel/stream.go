// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/authbridge/lib/codec"
	"github.com/bureau-foundation/authbridge/lib/netutil"
)

// closeWriteTimeout bounds the websocket close frame write.
const closeWriteTimeout = time.Second

// readerPort adapts a blocking message source to Port. A single reader
// goroutine owns read; Receive selects on its output so that callers
// can give up through their context.
type readerPort struct {
	write  func([]byte) error
	close  func() error
	logger *slog.Logger

	messages chan []byte
	closed   chan struct{}

	writeMutex sync.Mutex
	closeOnce  sync.Once

	// readErr is set before messages is closed.
	readErr error
}

func newReaderPort(read func() ([]byte, error), write func([]byte) error, closeFunc func() error, logger *slog.Logger) *readerPort {
	port := &readerPort{
		write:    write,
		close:    closeFunc,
		logger:   logger,
		messages: make(chan []byte, memoryBuffer),
		closed:   make(chan struct{}),
	}
	go port.readLoop(read)
	return port
}

func (p *readerPort) readLoop(read func() ([]byte, error)) {
	defer close(p.messages)
	for {
		message, err := read()
		if err != nil {
			select {
			case <-p.closed:
				p.readErr = ErrClosed
			default:
				if netutil.IsExpectedCloseError(err) {
					p.readErr = ErrClosed
				} else {
					p.logger.Warn("channel read failed", "error", err)
					p.readErr = fmt.Errorf("%w: %v", ErrClosed, err)
				}
			}
			return
		}
		select {
		case p.messages <- message:
		case <-p.closed:
			return
		}
	}
}

func (p *readerPort) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()
	if err := p.write(message); err != nil {
		if netutil.IsExpectedCloseError(err) {
			return ErrClosed
		}
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (p *readerPort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message, ok := <-p.messages:
		if !ok {
			return nil, p.readErr
		}
		return message, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *readerPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.close()
	})
	return err
}

// newConnPort frames messages over a stream connection as consecutive
// CBOR byte strings.
func newConnPort(conn net.Conn, logger *slog.Logger) Port {
	encoder := codec.NewEncoder(conn)
	decoder := codec.NewDecoder(conn)
	read := func() ([]byte, error) {
		var message []byte
		if err := decoder.Decode(&message); err != nil {
			return nil, err
		}
		return message, nil
	}
	write := func(message []byte) error {
		return encoder.Encode(message)
	}
	return newReaderPort(read, write, conn.Close, logger)
}

// newWebSocketPort carries one message per binary websocket message.
func newWebSocketPort(conn *websocket.Conn, logger *slog.Logger) Port {
	read := func() ([]byte, error) {
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				return nil, err
			}
			if messageType == websocket.BinaryMessage {
				return message, nil
			}
			logger.Debug("ignoring non-binary websocket message", "type", messageType)
		}
	}
	write := func(message []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, message)
	}
	closeFunc := func() error {
		// Best effort: tell the peer why before dropping the socket.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
		return conn.Close()
	}
	return newReaderPort(read, write, closeFunc, logger)
}
