// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by every
// authbridge wire format.
//
// Everything that crosses the host/module boundary is CBOR: bootstrap
// handshake frames, RPC call/result/callback frames, and the payloads
// they carry. Stored sessions (file and Redis session stores) use the
// same encoding. JSON appears only at the edges: the identity service
// HTTP API and CLI output.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same logical value always produces identical bytes, which keeps frame
// dumps diffable and test fixtures stable.
//
// Buffer-oriented:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented (stream ports framing one item per message):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct tags
//
// Types that only ever travel as CBOR use `cbor` tags. Types shared with
// JSON surfaces (AuthData, status snapshots) use `json` tags, which
// fxamacker/cbor reads as a fallback. A single field never carries both.
package codec
