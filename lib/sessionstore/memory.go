// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	session Session
	present bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.present, nil
}

func (m *Memory) Save(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.present = true
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	m.present = false
	return nil
}
