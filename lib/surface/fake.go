// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import (
	"context"
	"sync"
)

// Fake is an Opener for tests. Every opened tab is sent on Tabs so the
// test can act as the user.
type Fake struct {
	mutex   sync.Mutex
	opened  []*FakeTab
	shown   []string
	openErr error
	tabs    chan *FakeTab
}

var _ Opener = (*Fake)(nil)

// NewFake returns a Fake with room for 16 unconsumed tabs.
func NewFake() *Fake {
	return &Fake{tabs: make(chan *FakeTab, 16)}
}

// FailOpens makes subsequent Open and Show calls return err. Nil
// restores success.
func (f *Fake) FailOpens(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.openErr = err
}

func (f *Fake) Open(_ context.Context, target string) (Tab, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	tab := &FakeTab{URL: target, events: make(chan Event, 1)}
	f.opened = append(f.opened, tab)
	f.tabs <- tab
	return tab, nil
}

func (f *Fake) Show(_ context.Context, target string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.shown = append(f.shown, target)
	return nil
}

// Tabs delivers each tab as it is opened.
func (f *Fake) Tabs() <-chan *FakeTab { return f.tabs }

// OpenCount returns how many tabs were opened.
func (f *Fake) OpenCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.opened)
}

// Shown returns the targets passed to Show.
func (f *Fake) Shown() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.shown...)
}

// FakeTab is a tab the test drives.
type FakeTab struct {
	URL string

	mutex    sync.Mutex
	events   chan Event
	finished bool
	closed   bool
}

func (t *FakeTab) Events() <-chan Event { return t.events }

func (t *FakeTab) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true
	if !t.finished {
		t.finished = true
		close(t.events)
	}
	return nil
}

// Closed reports whether the handler closed the tab.
func (t *FakeTab) Closed() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.closed
}

// Login reports a sign-in. It returns false if the tab already
// finished.
func (t *FakeTab) Login(userID, token, connectionKey string) bool {
	return t.finish(Event{Kind: EventLogin, UserID: userID, Token: token, ConnectionKey: connectionKey}, true)
}

// Cancel reports an explicit close.
func (t *FakeTab) Cancel() bool {
	return t.finish(Event{Kind: EventClose}, true)
}

// Vanish closes the tab without reporting anything.
func (t *FakeTab) Vanish() bool {
	return t.finish(Event{}, false)
}

func (t *FakeTab) finish(event Event, send bool) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	if send {
		t.events <- event
	}
	close(t.events)
	return true
}
