// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/authbridge/lib/clock"
)

// DefaultLead is how long before expiry a token is refreshed.
const DefaultLead = 7 * 24 * time.Hour

// RefresherOptions configures a Refresher.
type RefresherOptions struct {
	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Lead defaults to DefaultLead.
	Lead time.Duration

	Logger *slog.Logger
}

// Refresher calls a refresh function shortly before a token expires.
// It holds at most one pending timer.
type Refresher struct {
	clock   clock.Clock
	lead    time.Duration
	logger  *slog.Logger
	refresh func(token string)

	mutex      sync.Mutex
	timer      *clock.Timer
	deadline   time.Time
	token      string
	generation uint64
	fired      uint64
}

// NewRefresher returns a Refresher that calls refresh with the scheduled
// token when its timer fires. refresh runs on the timer's goroutine and
// may call Schedule again.
func NewRefresher(options RefresherOptions, refresh func(token string)) *Refresher {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Lead <= 0 {
		options.Lead = DefaultLead
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Refresher{
		clock:   options.Clock,
		lead:    options.Lead,
		logger:  options.Logger,
		refresh: refresh,
	}
}

// Schedule cancels any pending refresh and arms one for token. It
// returns the time the refresh will fire, or false if token carries no
// expiry and nothing was scheduled.
func (r *Refresher) Schedule(token string) (time.Time, bool) {
	r.mutex.Lock()
	r.stopLocked()
	r.generation++
	generation := r.generation
	r.mutex.Unlock()

	expiry, ok := Expiry(token)
	if !ok {
		r.logger.Debug("token has no expiry, refresh not scheduled", "token", Fingerprint(token))
		return time.Time{}, false
	}

	now := r.clock.Now()
	delay := expiry.Sub(now) - r.lead
	if delay < 0 {
		delay = 0
	}
	deadline := now.Add(delay)
	r.logger.Debug("refresh scheduled",
		"token", Fingerprint(token),
		"expires_at", expiry,
		"refresh_at", deadline,
	)

	// The timer is armed without the lock held: a zero delay may run
	// the refresh before AfterFunc returns.
	timer := r.clock.AfterFunc(delay, func() { r.fire(generation, token) })

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.generation != generation {
		timer.Stop()
		return deadline, true
	}
	if r.fired != generation {
		r.timer = timer
		r.deadline = deadline
		r.token = token
	}
	return deadline, true
}

// Stop cancels the pending refresh, if any. A refresh already running
// is not interrupted.
func (r *Refresher) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.stopLocked()
	r.generation++
}

// Cancel stops the pending refresh if it was scheduled for token.
// A refresh scheduled for any other token is left alone.
func (r *Refresher) Cancel(token string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.timer == nil || r.token != token {
		return
	}
	r.stopLocked()
	r.generation++
}

// Pending reports whether a refresh timer is armed.
func (r *Refresher) Pending() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.timer != nil
}

// Deadline returns when the pending refresh fires.
func (r *Refresher) Deadline() (time.Time, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.timer == nil {
		return time.Time{}, false
	}
	return r.deadline, true
}

func (r *Refresher) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
		r.deadline = time.Time{}
		r.token = ""
	}
}

func (r *Refresher) fire(generation uint64, token string) {
	r.mutex.Lock()
	if r.generation != generation {
		r.mutex.Unlock()
		return
	}
	r.timer = nil
	r.deadline = time.Time{}
	r.token = ""
	r.fired = generation
	r.mutex.Unlock()

	r.logger.Info("refreshing session token", "token", Fingerprint(token))
	r.refresh(token)
}
