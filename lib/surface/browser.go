// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/authbridge/lib/clock"
)

// DefaultTimeout closes a browser tab that never calls back.
const DefaultTimeout = 10 * time.Minute

// shutdownTimeout bounds how long Close waits for an in-flight
// callback response.
const shutdownTimeout = 2 * time.Second

// CallbackPath is the loopback path pages redirect to.
const CallbackPath = "/callback"

// Query parameters of the redirect callback.
const (
	ParamRedirectURI   = "redirect_uri"
	ParamState         = "state"
	ParamUserID        = "user_id"
	ParamToken         = "token"
	ParamConnectionKey = "connection_key"
	ParamError         = "error"
)

// Browser opens surfaces in the user's browser.
type Browser struct {
	// Launch shows a URL. Nil runs the platform opener (xdg-open,
	// open on macOS).
	Launch func(ctx context.Context, target string) error

	// Timeout closes tabs that never call back, which the handler
	// treats as an unexpected closure. Zero uses DefaultTimeout.
	Timeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

var _ Opener = (*Browser)(nil)

// Show launches target without waiting for anything.
func (b *Browser) Show(ctx context.Context, target string) error {
	return b.launch(ctx, target)
}

// Open serves a one-shot callback on a loopback port, launches target
// with redirect_uri and state appended, and returns the tab.
func (b *Browser) Open(ctx context.Context, target string) (Tab, error) {
	page, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing surface URL: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for surface callback: %w", err)
	}

	tab := &browserTab{
		state:  uuid.NewString(),
		events: make(chan Event, 1),
		logger: b.logger(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, tab.handleCallback)
	tab.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := tab.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tab.logger.Warn("surface callback server failed", "error", err)
		}
	}()

	query := page.Query()
	query.Set(ParamRedirectURI, "http://"+listener.Addr().String()+CallbackPath)
	query.Set(ParamState, tab.state)
	page.RawQuery = query.Encode()
	tab.pageURL = page.String()

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tab.timer = b.clock().AfterFunc(timeout, func() {
		tab.logger.Info("surface timed out", "timeout", timeout)
		tab.Close()
	})

	if err := b.launch(ctx, tab.pageURL); err != nil {
		tab.Close()
		return nil, err
	}
	tab.logger.Debug("surface opened", "callback", listener.Addr().String())
	return tab, nil
}

func (b *Browser) launch(ctx context.Context, target string) error {
	if b.Launch != nil {
		return b.Launch(ctx, target)
	}
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	command := exec.CommandContext(ctx, name, target)
	command.Stdout = io.Discard
	command.Stderr = io.Discard
	if err := command.Run(); err != nil {
		return fmt.Errorf("launching %s: %w", name, err)
	}
	return nil
}

func (b *Browser) clock() clock.Clock {
	if b.Clock == nil {
		return clock.Real()
	}
	return b.Clock
}

func (b *Browser) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

type browserTab struct {
	state   string
	pageURL string
	server  *http.Server
	timer   *clock.Timer
	logger  *slog.Logger

	events    chan Event
	mutex     sync.Mutex
	finished  bool
	closeOnce sync.Once
}

func (t *browserTab) Events() <-chan Event { return t.events }

// URL returns the launched page URL including redirect_uri and state.
func (t *browserTab) URL() string { return t.pageURL }

func (t *browserTab) Close() error {
	t.closeOnce.Do(func() {
		t.mutex.Lock()
		if !t.finished {
			t.finished = true
			close(t.events)
		}
		t.mutex.Unlock()
		if t.timer != nil {
			t.timer.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		t.server.Shutdown(ctx)
	})
	return nil
}

// finish delivers event unless the tab already reported or closed.
func (t *browserTab) finish(event Event) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	t.events <- event
	close(t.events)
	return true
}

func (t *browserTab) handleCallback(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	if query.Get(ParamState) != t.state {
		http.Error(writer, "state mismatch", http.StatusBadRequest)
		return
	}

	event := Event{Kind: EventClose}
	if query.Get(ParamError) == "" {
		event = Event{
			Kind:          EventLogin,
			UserID:        query.Get(ParamUserID),
			Token:         query.Get(ParamToken),
			ConnectionKey: query.Get(ParamConnectionKey),
		}
		if event.UserID == "" {
			http.Error(writer, "missing user_id", http.StatusBadRequest)
			return
		}
	}

	if !t.finish(event) {
		http.Error(writer, "this sign-in already finished", http.StatusGone)
		return
	}
	t.logger.Info("surface reported", "event", event.Kind.String())
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(writer, "You can close this tab and return to the application.\n")

	// Shutdown waits for this handler to return.
	go t.Close()
}
