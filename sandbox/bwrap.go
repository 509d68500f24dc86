// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Bind modes.
const (
	ModeRO = "ro"
	ModeRW = "rw"
)

// systemMounts are bound read-only when they exist on the host.
var systemMounts = []string{
	"/usr",
	"/lib",
	"/lib64",
	"/bin",
	"/etc/ssl",
	"/etc/ca-certificates",
	"/etc/pki",
	"/etc/resolv.conf",
	"/etc/hosts",
	"/etc/nsswitch.conf",
}

// BwrapOptions holds options for building a bwrap command.
type BwrapOptions struct {
	// Command is the module binary followed by its arguments. The
	// binary must be an absolute path; it is bound read-only at the
	// same location inside the sandbox.
	Command []string

	// ExtraBinds are additional mounts in "source[:dest[:mode]]" form.
	// Mode defaults to ro.
	ExtraBinds []string

	// Env is set inside the sandbox after --clearenv.
	Env map[string]string
}

// BwrapBuilder builds bubblewrap command-line arguments.
type BwrapBuilder struct {
	args []string

	// exists reports whether a host path is present. Tests replace it.
	exists func(path string) bool
}

// NewBwrapBuilder creates a new builder.
func NewBwrapBuilder() *BwrapBuilder {
	return &BwrapBuilder{exists: pathExists}
}

// Build constructs the bwrap arguments (without the bwrap binary
// itself) from opts.
func (b *BwrapBuilder) Build(opts *BwrapOptions) ([]string, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("command is required")
	}
	binary := opts.Command[0]
	if !filepath.IsAbs(binary) {
		return nil, fmt.Errorf("module binary %q must be an absolute path", binary)
	}

	b.args = []string{
		"--unshare-pid",
		"--unshare-ipc",
		"--unshare-uts",
		"--unshare-cgroup-try",
		"--unshare-user-try",
		"--new-session",
		"--die-with-parent",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
	}

	for _, path := range systemMounts {
		if b.exists(path) {
			b.args = append(b.args, "--ro-bind", path, path)
		}
	}
	for _, dir := range pathHierarchy(filepath.Dir(binary)) {
		b.args = append(b.args, "--dir", dir)
	}
	b.args = append(b.args, "--ro-bind", binary, binary)

	for _, bind := range opts.ExtraBinds {
		source, dest, mode, err := parseBindSpec(bind)
		if err != nil {
			return nil, err
		}
		if mode == ModeRO {
			b.args = append(b.args, "--ro-bind", source, dest)
		} else {
			b.args = append(b.args, "--bind", source, dest)
		}
	}

	b.args = append(b.args, "--clearenv")
	keys := make([]string, 0, len(opts.Env))
	for key := range opts.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.args = append(b.args, "--setenv", key, opts.Env[key])
	}

	b.args = append(b.args, "--")
	b.args = append(b.args, opts.Command...)
	return b.args, nil
}

// parseBindSpec parses "source", "source:dest", or "source:dest:mode".
// Paths containing colons are not supported.
func parseBindSpec(spec string) (source, dest, mode string, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 3 || parts[0] == "" {
		return "", "", "", fmt.Errorf("invalid bind spec %q: must be source[:dest[:mode]]", spec)
	}

	source, dest, mode = parts[0], parts[0], ModeRO
	if len(parts) >= 2 && parts[1] != "" {
		dest = parts[1]
	}
	if len(parts) == 3 {
		if parts[2] != ModeRO && parts[2] != ModeRW {
			return "", "", "", fmt.Errorf("invalid bind mode %q: must be ro or rw", parts[2])
		}
		mode = parts[2]
	}
	return source, dest, mode, nil
}

// BwrapPath resolves the bwrap executable. A configured path wins;
// otherwise PATH is searched, then the usual install locations.
func BwrapPath(configured string) (string, error) {
	if configured != "" {
		if !pathExists(configured) {
			return "", fmt.Errorf("configured bwrap %s does not exist", configured)
		}
		return configured, nil
	}
	if path, err := exec.LookPath("bwrap"); err == nil {
		return path, nil
	}
	for _, path := range []string{"/usr/bin/bwrap", "/usr/local/bin/bwrap", "/bin/bwrap"} {
		if pathExists(path) {
			return path, nil
		}
	}
	return "", errors.New("bwrap not found in PATH or standard locations")
}

// pathHierarchy returns every directory from the root down to path:
// "/opt/authbridge/bin" yields ["/opt", "/opt/authbridge",
// "/opt/authbridge/bin"]. bwrap's --dir creates one component at a time.
func pathHierarchy(path string) []string {
	path = filepath.Clean(path)
	var components []string
	for path != "/" && path != "." {
		components = append(components, path)
		path = filepath.Dir(path)
	}
	for left, right := 0, len(components)-1; left < right; left, right = left+1, right-1 {
		components[left], components[right] = components[right], components[left]
	}
	return components
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
