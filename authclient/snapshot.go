// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authclient

import (
	"sync"

	"github.com/bureau-foundation/authbridge/lib/authschema"
)

// Snapshot is the helper's cached view of the module. A Snapshot is
// never modified after it is published.
type Snapshot struct {
	// Version is the negotiated protocol version, 0 before the first
	// successful initialization.
	Version int

	// Status is the accumulated login status.
	Status authschema.LoginStatus

	// UI is the page currently shown.
	UI authschema.LoginUIStatus
}

// AuthData returns the cached identity, nil when logged out.
func (s *Snapshot) AuthData() *authschema.AuthData { return s.Status.AuthData }

// subscribers fans snapshot changes out to registered functions. The
// helper calls it with its publish mutex held, so each stream is
// delivered in order.
type subscribers[T any] struct {
	mutex sync.Mutex
	next  int
	fns   map[int]func(T)
}

func (s *subscribers[T]) add(fn func(T)) (id int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *subscribers[T]) remove(id int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.fns, id)
}

func (s *subscribers[T]) notify(value T) {
	s.mutex.Lock()
	fns := make([]func(T), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mutex.Unlock()
	for _, fn := range fns {
		fn(value)
	}
}
