// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// authbridge-module runs the authentication module. Launched by a host
// as an exec:// origin it serves one channel over the bootstrap socket
// named by --bootstrap-fd. With --listen it serves websocket hosts
// instead, one channel per connection, alongside /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/authbridge/authhandler"
	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/process"
	"github.com/bureau-foundation/authbridge/lib/service"
	"github.com/bureau-foundation/authbridge/lib/sessionstore"
	"github.com/bureau-foundation/authbridge/lib/surface"
	"github.com/bureau-foundation/authbridge/lib/version"
	"github.com/bureau-foundation/authbridge/rpc"
)

func main() {
	process.Exit(run())
}

func run() error {
	var (
		configPath  string
		showVersion bool
		fd          int
		listen      string
		logLevel    string
	)
	flagSet := pflag.NewFlagSet("authbridge-module", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $AUTHBRIDGE_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.IntVar(&fd, "bootstrap-fd", channel.BootstrapFD, "bootstrap socket descriptor, passed by exec:// hosts")
	flagSet.StringVar(&listen, "listen", "", "serve websocket hosts on this address (overrides module.listen)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "authbridge-module")
		return nil
	}

	level, err := process.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := process.NewLogger(os.Stderr, level)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Module.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := sessionstore.New(cfg.SessionStore)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer closeStore()

	identityClient, err := identity.NewClient(identity.Config{
		BaseURL: cfg.Module.IdentityURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := rpc.NewMetrics("module")
	if err := metrics.Register(registry); err != nil {
		return err
	}

	serve := authhandler.ServeFunc(authhandler.Options{
		Config:   cfg.Module,
		Identity: identityClient,
		Store:    store,
		Surfaces: &surface.Browser{Logger: logger},
		Metrics:  metrics,
		Logger:   logger,
	})

	logger.Info("auth module starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"session_store", cfg.SessionStore.Backend,
	)

	// A host that launched us always passes --bootstrap-fd, whatever
	// the configuration says about listening.
	if cfg.Module.Listen == "" || flagSet.Changed("bootstrap-fd") {
		err := channel.ServeFD(ctx, fd, serve, logger)
		if errors.Is(err, context.Canceled) || errors.Is(err, channel.ErrClosed) {
			return nil
		}
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", &channel.WebSocketHandler{
		Serve:          serve,
		AllowedOrigins: cfg.Module.AllowedOrigins,
		Logger:         logger,
	})
	server, err := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Module.Listen,
		Handler: mux,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
