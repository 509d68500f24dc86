// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/authbridge/rpc"
)

// push is one queued callback. A push with flushed set carries no
// payload: run closes flushed once every push queued before it has
// been sent.
type push struct {
	name    string
	payload any
	flushed chan struct{}
}

// pusher sends the status callbacks of one connection in the order
// they were queued. Status streams only queue, so a host that stops
// reading delays its own updates and nothing else.
type pusher struct {
	conn    *rpc.Conn
	logger  *slog.Logger
	wake    chan struct{}
	stopped chan struct{}

	mutex sync.Mutex
	queue []push
}

func newPusher(conn *rpc.Conn, logger *slog.Logger) *pusher {
	return &pusher{
		conn:    conn,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// enqueue queues a callback without waiting for it to be sent.
func (p *pusher) enqueue(name string, payload any) {
	p.add(push{name: name, payload: payload})
}

func (p *pusher) add(item push) {
	p.mutex.Lock()
	p.queue = append(p.queue, item)
	p.mutex.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// flush waits until everything queued so far has been sent, or ctx
// ends, or the pusher stops.
func (p *pusher) flush(ctx context.Context) {
	flushed := make(chan struct{})
	p.add(push{flushed: flushed})
	select {
	case <-flushed:
	case <-ctx.Done():
	case <-p.stopped:
	}
}

// ordered runs handle and flushes before its result goes out, so the
// host sees the status updates a call caused before the call returns.
func (p *pusher) ordered(handle rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, args rpc.Args) (any, error) {
		result, err := handle(ctx, args)
		p.flush(ctx)
		return result, err
	}
}

// run sends queued callbacks until ctx ends.
func (p *pusher) run(ctx context.Context) {
	defer close(p.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		for {
			item, ok := p.next()
			if !ok {
				break
			}
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			if err := p.conn.Invoke(ctx, item.name, item.payload); err != nil {
				p.logger.Debug("status push not delivered", "callback", item.name, "error", err)
			}
		}
	}
}

func (p *pusher) next() (push, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.queue) == 0 {
		return push{}, false
	}
	item := p.queue[0]
	p.queue[0] = push{}
	p.queue = p.queue[1:]
	return item, true
}
