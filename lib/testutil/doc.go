// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for authbridge packages.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-deadline pattern that every channel-driven test needs, so
// that tests never call time.After themselves. They are the only place
// in the test suite where real wall-clock timeouts appear; everything
// that is part of the behavior under test runs on a [clock.FakeClock].
//
// [UniqueID] returns monotonically increasing identifiers for test
// disambiguation (origins, user ids, attempt labels).
//
// All helpers call t.Fatalf on failure rather than returning errors.
//
// This package has no authbridge-internal dependencies.
package testutil
