// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"sync"
	"time"
)

// Blacklist is a set of revoked token IDs. An entry lives until the
// token's own expiry, after which Verify rejects the token anyway.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// Revoke adds tokenID, kept until tokenExpiresAt.
func (b *Blacklist) Revoke(tokenID string, tokenExpiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = tokenExpiresAt
}

// IsRevoked checks whether tokenID has been revoked.
func (b *Blacklist) IsRevoked(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.entries[tokenID]
	return exists
}

// Cleanup removes entries whose token expiry is not after now and
// returns how many were removed.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for tokenID, expiresAt := range b.entries {
		if !now.Before(expiresAt) {
			delete(b.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
