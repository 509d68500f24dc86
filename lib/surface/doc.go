// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package surface opens external authentication surfaces: a login page
// or authorization page shown outside the host application, usually in
// the user's browser.
//
// A [Tab] reports at most one [Event] and then closes its event
// channel. The handler distinguishes three outcomes: a login event (the
// user signed in; the event carries the session), a close event (the
// user explicitly backed out), and the channel closing with no event at
// all (the surface went away unexpectedly).
//
// [Browser] is the production implementation. It serves a one-shot
// redirect callback on a loopback port, appends the callback URL and a
// random state value to the page URL, and launches the page with the
// platform opener (xdg-open by default). [Fake] drives the same
// interface from tests.
package surface
