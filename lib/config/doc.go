// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads authbridge configuration for both the host CLI
// and the module binary.
//
// Configuration comes from a single file named by the AUTHBRIDGE_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no fallback search path.
//
// Files ending in .json or .jsonc are JSON with comments and trailing
// commas (stripped with tidwall/jsonc); anything else is YAML. Both
// decode through the same yaml struct tags, since JSON is a subset of
// YAML.
//
// The file may carry development, staging, and production sections.
// The one matching [Config].Environment is decoded over the base
// values, so it only needs to name the fields it changes. Production
// without an explicit section turns the module sandbox on.
//
// ${HOME}, ${AUTHBRIDGE_STATE}, and ${VAR:-default} are expanded in
// path fields after loading. No other environment variables override
// config values.
package config
