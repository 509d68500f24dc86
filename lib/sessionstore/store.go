// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/authbridge/lib/config"
)

// Session is the persisted session material.
type Session struct {
	Token         string    `cbor:"token"`
	ConnectionKey string    `cbor:"connection_key"`
	UserID        string    `cbor:"user_id,omitempty"`
	SavedAt       time.Time `cbor:"saved_at"`
}

// Store loads, saves, and clears the single stored session.
type Store interface {
	// Load returns the stored session. The boolean is false when
	// nothing is stored.
	Load(ctx context.Context) (Session, bool, error)

	Save(ctx context.Context, session Session) error

	// Clear removes the stored session. Clearing an empty store is
	// not an error.
	Clear(ctx context.Context) error
}

// New constructs the backend named by cfg.Backend. The returned closer
// releases backend resources (the redis connection pool) and is never
// nil.
func New(cfg config.SessionStoreConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemory(), noop, nil
	case config.BackendFile:
		store, err := NewFile(FileOptions{
			Path:         cfg.Path,
			Recipients:   cfg.Recipients,
			IdentityFile: cfg.IdentityFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.BackendRedis:
		store, err := DialRedis(cfg.RedisURL, RedisOptions{
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store backend %q", cfg.Backend)
	}
}
