// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import "context"

// EventKind distinguishes the two things an open surface can report.
type EventKind int

const (
	// EventLogin means the user signed in on the surface.
	EventLogin EventKind = iota + 1

	// EventClose means the user closed the surface without signing
	// in.
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventLogin:
		return "login"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is the single report of a Tab. Token and ConnectionKey are set
// on login events when the surface hands the session back directly.
type Event struct {
	Kind          EventKind
	UserID        string
	Token         string
	ConnectionKey string
}

// Tab is one open surface.
type Tab interface {
	// Events delivers at most one Event, then is closed. A close with
	// no event means the surface disappeared.
	Events() <-chan Event

	// Close tears the surface down. Events is closed if it was not
	// already. Close is idempotent.
	Close() error
}

// Opener opens surfaces.
type Opener interface {
	// Open shows target and returns a Tab that reports how the user
	// left it.
	Open(ctx context.Context, target string) (Tab, error)

	// Show displays target with nothing to report back (an account
	// page).
	Show(ctx context.Context, target string) error
}
