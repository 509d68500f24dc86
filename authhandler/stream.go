// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import "sync"

// stream is an ordered broadcast of T. Delivery happens under the
// stream mutex, so subscribers see emissions in production order and
// must not emit on the same stream.
type stream[T any] struct {
	mutex       sync.Mutex
	current     T
	subscribers map[int]func(T)
	nextID      int
}

func newStream[T any](initial T) *stream[T] {
	return &stream[T]{current: initial, subscribers: make(map[int]func(T))}
}

// emit replaces the current value with merge(current) and delivers
// the value returned by deliver.
func (s *stream[T]) emit(merge func(current T) (next, delivered T)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	next, delivered := merge(s.current)
	s.current = next
	for _, subscriber := range s.subscribers {
		subscriber(delivered)
	}
}

// subscribe registers fn and immediately delivers replay(current) to
// it. The returned function unsubscribes.
func (s *stream[T]) subscribe(fn func(T), replay func(current T) T) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	fn(replay(s.current))
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *stream[T]) value() T {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}
