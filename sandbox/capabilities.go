// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"os/exec"
	"strings"
)

// Capabilities describes what sandbox features are available on this
// system.
type Capabilities struct {
	BwrapAvailable        bool
	BwrapPath             string
	BwrapVersion          string
	UserNamespacesEnabled bool
}

// DetectCapabilities checks whether bwrap is usable. configuredPath is
// passed through to BwrapPath.
func DetectCapabilities(configuredPath string) *Capabilities {
	caps := &Capabilities{}
	path, err := BwrapPath(configuredPath)
	if err != nil {
		return caps
	}
	caps.BwrapAvailable = true
	caps.BwrapPath = path
	if out, err := exec.Command(path, "--version").Output(); err == nil {
		caps.BwrapVersion = strings.TrimSpace(string(out))
	}
	caps.UserNamespacesEnabled = checkUserNamespaces(path)
	return caps
}

// checkUserNamespaces tests whether unprivileged user namespaces work.
func checkUserNamespaces(bwrapPath string) bool {
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil && strings.TrimSpace(string(data)) == "0" {
		return false
	}
	// A missing sysctl usually means user namespaces are allowed; ask
	// bwrap to be sure.
	cmd := exec.Command(bwrapPath, "--unshare-user", "--ro-bind", "/", "/", "--", "true")
	return cmd.Run() == nil
}

// SkipReason returns why sandboxing is unavailable, or "" if it is
// available.
func (c *Capabilities) SkipReason() string {
	if !c.BwrapAvailable {
		return "bubblewrap not installed"
	}
	if !c.UserNamespacesEnabled {
		return "unprivileged user namespaces not enabled (set kernel.unprivileged_userns_clone=1)"
	}
	return ""
}
