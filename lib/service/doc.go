// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the serving scaffolding shared by authbridge
// binaries.
//
// HTTPServer owns a TCP listener and its graceful shutdown. The module
// binary mounts the websocket channel endpoint and the Prometheus
// metrics endpoint on it. Callers compose the handler themselves: the
// package provides the lifecycle, not routing.
package service
