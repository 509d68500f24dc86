// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/authbridge/authclient"
	"github.com/bureau-foundation/authbridge/authhandler"
	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/process"
	"github.com/bureau-foundation/authbridge/lib/sessionstore"
	"github.com/bureau-foundation/authbridge/lib/surface"
)

// configEnv names the configuration file when --config is absent.
const configEnv = "AUTHBRIDGE_CONFIG"

// connection holds the flags every module-facing command shares and
// builds the Helper they use.
type connection struct {
	configPath string
	origin     string
	logLevel   string

	stderr io.Writer
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "configuration file (default: $"+configEnv+", else built-in defaults)")
	flagSet.StringVar(&c.origin, "origin", "", "module origin, overriding host.origin (mem://name, exec:///path, ws(s)://...)")
	flagSet.StringVar(&c.logLevel, "log-level", "warn", "debug, info, warn, or error")
}

// loadConfig reads --config, then $AUTHBRIDGE_CONFIG, then falls back
// to the defaults, and applies --origin.
func (c *connection) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded
	}
	if c.origin != "" {
		cfg.Host.Origin = c.origin
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Host.Origin == "" {
		return nil, errors.New("no module origin: set host.origin in the configuration or pass --origin")
	}
	return cfg, nil
}

// open builds a Helper for the configured origin. The returned release
// closes the Helper and the in-process module, if any.
func (c *connection) open() (*authclient.Helper, func(), error) {
	level, err := process.ParseLevel(c.logLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := process.NewLogger(os.Stderr, level)

	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opener := &channel.Opener{
		HandshakeTimeout: cfg.Host.HandshakeTimeout,
		HostOrigin:       cfg.Host.HostOrigin,
		Stderr:           c.stderr,
		Logger:           logger,
	}
	if cfg.Sandbox.Enabled {
		opener.Sandbox = c.sandbox(cfg)
	}

	releaseModule := func() error { return nil }
	if origin, err := url.Parse(cfg.Host.Origin); err == nil && origin.Scheme == "mem" {
		serve, closeStore, err := inProcessModule(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		opener.Modules = map[string]channel.ServeFunc{origin.Host: serve}
		releaseModule = closeStore
	}

	helper := authclient.New(authclient.Options{
		Host:   cfg.Host,
		Opener: opener,
		Logger: logger,
	})
	release := func() {
		if err := helper.Close(); err != nil {
			logger.Warn("closing auth module", "error", err)
		}
		if err := releaseModule(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}
	return helper, release, nil
}

// sandbox passes the configuration file into the bwrap sandbox so the
// module reads the same one.
func (c *connection) sandbox(cfg *config.Config) *channel.SandboxOptions {
	options := &channel.SandboxOptions{
		BwrapPath:  cfg.Sandbox.BwrapPath,
		ExtraBinds: append([]string(nil), cfg.Sandbox.ExtraBinds...),
		Env:        map[string]string{"PATH": "/usr/bin:/bin"},
	}
	path := c.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		if absolute, err := filepath.Abs(path); err == nil {
			path = absolute
		}
		options.ExtraBinds = append(options.ExtraBinds, path)
		options.Env[configEnv] = path
	}
	return options
}

// inProcessModule builds the module a mem:// origin runs inside this
// process, from the same configuration file.
func inProcessModule(cfg *config.Config, logger *slog.Logger) (channel.ServeFunc, func() error, error) {
	store, closeStore, err := sessionstore.New(cfg.SessionStore)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	identityClient, err := identity.NewClient(identity.Config{
		BaseURL: cfg.Module.IdentityURL,
		Logger:  logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	serve := authhandler.ServeFunc(authhandler.Options{
		Config:   cfg.Module,
		Identity: identityClient,
		Store:    store,
		Surfaces: &surface.Browser{Logger: logger},
		Logger:   logger.With("side", "module"),
	})
	return serve, closeStore, nil
}
