// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"testing"
	"time"
)

func TestBlacklistRevokeAndCheck(t *testing.T) {
	blacklist := NewBlacklist()
	blacklist.Revoke("token-1", issuedAt.Add(time.Hour))

	if !blacklist.IsRevoked("token-1") {
		t.Error("token-1 should be revoked")
	}
	if blacklist.IsRevoked("token-2") {
		t.Error("token-2 should not be revoked")
	}
	if blacklist.Len() != 1 {
		t.Errorf("Len = %d, want 1", blacklist.Len())
	}
}

func TestBlacklistCleanup(t *testing.T) {
	blacklist := NewBlacklist()
	blacklist.Revoke("token-1", issuedAt)
	blacklist.Revoke("token-2", issuedAt.Add(5*time.Minute))
	blacklist.Revoke("token-3", issuedAt.Add(10*time.Minute))

	if removed := blacklist.Cleanup(issuedAt.Add(2 * time.Minute)); removed != 1 {
		t.Errorf("first Cleanup removed %d, want 1", removed)
	}
	if blacklist.IsRevoked("token-1") || !blacklist.IsRevoked("token-2") {
		t.Error("first Cleanup removed the wrong entries")
	}

	// An entry expiring exactly at the cleanup time goes too.
	if removed := blacklist.Cleanup(issuedAt.Add(10 * time.Minute)); removed != 2 {
		t.Errorf("second Cleanup removed %d, want 2", removed)
	}
	if blacklist.Len() != 0 {
		t.Errorf("Len = %d, want 0", blacklist.Len())
	}
}
