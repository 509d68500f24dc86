// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Session store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the master configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Host configures the host side: where the module lives and the
	// defaults the facade falls back to on old modules.
	Host HostConfig `yaml:"host"`

	// Module configures the authentication module.
	Module ModuleConfig `yaml:"module"`

	// SessionStore configures where the module keeps session material.
	SessionStore SessionStoreConfig `yaml:"session_store"`

	// Sandbox configures bubblewrap isolation of exec:// modules.
	Sandbox SandboxConfig `yaml:"sandbox"`
}

// HostConfig configures the host application side.
type HostConfig struct {
	// Origin locates the module: mem://name, exec:///path?arg=..., or
	// ws(s)://host/path. Empty disables authentication entirely.
	Origin string `yaml:"origin"`

	// HostOrigin is sent as the Origin header to websocket modules.
	HostOrigin string `yaml:"host_origin"`

	// HandshakeTimeout bounds channel setup. Default: 10s.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// RecordsOrigin is returned by the facade when the module is too
	// old to report its own.
	RecordsOrigin string `yaml:"records_origin"`

	// WebsocketOrigin and WebsocketProtocol are the fallbacks for
	// modules below protocol version 5.
	WebsocketOrigin   string `yaml:"websocket_origin"`
	WebsocketProtocol string `yaml:"websocket_protocol"`
}

// ModuleConfig configures the authentication module.
type ModuleConfig struct {
	// SiteName, TermsOfServiceURL and PrivacyPolicyURL are echoed in UI
	// status so the host can render legal text.
	SiteName          string `yaml:"site_name"`
	TermsOfServiceURL string `yaml:"terms_of_service_url"`
	PrivacyPolicyURL  string `yaml:"privacy_policy_url"`

	// UseCustomUI selects the address/code flow over the external tab.
	UseCustomUI bool `yaml:"use_custom_ui"`

	// EnableSMS allows phone numbers as login addresses.
	EnableSMS bool `yaml:"enable_sms"`

	// GuardianConsent selects the has-account / registration flow.
	GuardianConsent bool `yaml:"guardian_consent"`

	// IdentityURL is the base URL of the identity service.
	IdentityURL string `yaml:"identity_url"`

	// LoginPageURL is opened in an external tab for the redirect flow.
	LoginPageURL string `yaml:"login_page_url"`

	// AccountPageURL is opened by openAccountPage.
	AccountPageURL string `yaml:"account_page_url"`

	RecordsOrigin     string `yaml:"records_origin"`
	WebsocketOrigin   string `yaml:"websocket_origin"`
	WebsocketProtocol string `yaml:"websocket_protocol"`

	// RefreshLead is how long before expiry a session is replaced.
	// Default: 168h.
	RefreshLead time.Duration `yaml:"refresh_lead"`

	// AllowedOrigins restricts which host origins may open a websocket
	// channel when the module runs with --listen.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Listen is the address for websocket serving, e.g. 127.0.0.1:7420.
	Listen string `yaml:"listen"`
}

// SessionStoreConfig configures session persistence.
type SessionStoreConfig struct {
	// Backend is memory, file, or redis. Default: memory.
	Backend string `yaml:"backend"`

	// Path is the session file for the file backend.
	Path string `yaml:"path"`

	// Recipients seal the session file with age. Empty stores it in
	// the clear (mode 0600).
	Recipients []string `yaml:"recipients"`

	// IdentityFile holds the age identity that opens the session file.
	IdentityFile string `yaml:"identity_file"`

	// RedisURL is a redis:// URL for the redis backend.
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces redis keys. Default: authbridge:
	KeyPrefix string `yaml:"key_prefix"`

	// TTL expires stored sessions. Zero keeps them until cleared.
	TTL time.Duration `yaml:"ttl"`
}

// SandboxConfig configures bubblewrap wrapping of exec:// modules.
type SandboxConfig struct {
	Enabled bool `yaml:"enabled"`

	// BwrapPath overrides the bwrap binary. Default: found in PATH.
	BwrapPath string `yaml:"bwrap_path"`

	// ExtraBinds are read-only bind mounts added to the default set,
	// as "source" or "source:dest".
	ExtraBinds []string `yaml:"extra_binds"`
}

// fileLayout is the on-disk shape: the base config plus raw
// per-environment sections decoded over it after the environment is
// known.
type fileLayout struct {
	Config      `yaml:",inline"`
	Development *yaml.Node `yaml:"development"`
	Staging     *yaml.Node `yaml:"staging"`
	Production  *yaml.Node `yaml:"production"`
}

// Default returns the configuration every file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Host: HostConfig{
			HandshakeTimeout: 10 * time.Second,
		},
		Module: ModuleConfig{
			RefreshLead: 7 * 24 * time.Hour,
		},
		SessionStore: SessionStoreConfig{
			Backend:   BackendMemory,
			Path:      "${AUTHBRIDGE_STATE}/session",
			KeyPrefix: "authbridge:",
		},
	}
}

// Load loads configuration from the file named by AUTHBRIDGE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("AUTHBRIDGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AUTHBRIDGE_CONFIG environment variable not set; " +
			"set it to the path of your authbridge.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data, isJSONC(path))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration bytes over Default, applies the matching
// environment section, and expands path variables.
func Parse(data []byte, jsonWithComments bool) (*Config, error) {
	if jsonWithComments {
		data = jsonc.ToJSON(data)
	}

	layout := fileLayout{Config: *Default()}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := &layout.Config
	if err := cfg.applyEnvironmentOverrides(&layout); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func isJSONC(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

func (c *Config) applyEnvironmentOverrides(layout *fileLayout) error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = layout.Development
	case Staging:
		section = layout.Staging
	case Production:
		section = layout.Production
		if section == nil {
			c.Sandbox.Enabled = true
			return nil
		}
	}
	if section == nil {
		return nil
	}
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("applying %s section: %w", c.Environment, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	home := os.Getenv("HOME")
	vars := map[string]string{
		"HOME":             home,
		"AUTHBRIDGE_STATE": filepath.Join(home, ".local", "state", "authbridge"),
	}

	c.SessionStore.Path = expandVars(c.SessionStore.Path, vars)
	c.SessionStore.IdentityFile = expandVars(c.SessionStore.IdentityFile, vars)
	c.Sandbox.BwrapPath = expandVars(c.Sandbox.BwrapPath, vars)
	for index, bind := range c.Sandbox.ExtraBinds {
		c.Sandbox.ExtraBinds[index] = expandVars(bind, vars)
	}
	c.Host.Origin = expandVars(c.Host.Origin, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. The environment wins
// over vars so AUTHBRIDGE_STATE can be pointed elsewhere.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Host.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("host.handshake_timeout must be positive"))
	}
	if c.Host.Origin != "" {
		if err := validateOrigin(c.Host.Origin); err != nil {
			errs = append(errs, fmt.Errorf("host.origin: %w", err))
		}
	}

	if c.Module.RefreshLead <= 0 {
		errs = append(errs, errors.New("module.refresh_lead must be positive"))
	}
	for name, value := range map[string]string{
		"module.identity_url":   c.Module.IdentityURL,
		"module.login_page_url": c.Module.LoginPageURL,
	} {
		if value == "" {
			continue
		}
		if parsed, err := url.Parse(value); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, value))
		}
	}

	switch c.SessionStore.Backend {
	case BackendMemory:
	case BackendFile:
		if c.SessionStore.Path == "" {
			errs = append(errs, errors.New("session_store.path is required for the file backend"))
		}
		if len(c.SessionStore.Recipients) > 0 && c.SessionStore.IdentityFile == "" {
			errs = append(errs, errors.New("session_store.identity_file is required when recipients are set"))
		}
	case BackendRedis:
		if c.SessionStore.RedisURL == "" {
			errs = append(errs, errors.New("session_store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session_store.backend must be one of memory, file, redis; got %q", c.SessionStore.Backend))
	}

	return errors.Join(errs...)
}

func validateOrigin(origin string) error {
	parsed, err := url.Parse(origin)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "mem", "exec", "ws", "wss":
		return nil
	}
	return fmt.Errorf("unsupported scheme %q (want mem, exec, ws or wss)", parsed.Scheme)
}
