// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so that token expiry checks,
// refresh timers, and handshake deadlines can be driven
// deterministically in tests.
//
// Production code holds a [Clock] and never calls time.Now,
// time.After, or time.AfterFunc directly:
//
//	refresher := sessiontoken.NewRefresher(sessiontoken.RefresherConfig{
//	    Clock: clock.Real(),
//	    // ...
//	})
//
// Tests construct a [FakeClock] pinned to a fixed instant and move it
// forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	refresher.Schedule(token)
//	fake.WaitForTimers(1)
//	fake.Advance(24 * time.Hour)
//
// WaitForTimers closes the race between a goroutine registering a timer
// and the test advancing time past it.
package clock
