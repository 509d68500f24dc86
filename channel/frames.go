// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"

	"github.com/bureau-foundation/authbridge/lib/codec"
)

// Handshake frame types.
const (
	frameReady    = "ready"
	frameInitPort = "init_port"
)

// bootstrapFrame is the only message shape exchanged before the port
// is handed over.
type bootstrapFrame struct {
	Type string `cbor:"type"`

	// Version is the handshake format the sender speaks.
	Version int `cbor:"version,omitempty"`
}

const handshakeVersion = 1

func encodeFrame(frameType string) []byte {
	data, err := codec.Marshal(bootstrapFrame{Type: frameType, Version: handshakeVersion})
	if err != nil {
		// A two-field struct of a string and an int cannot fail to encode.
		panic(fmt.Sprintf("encoding %s frame: %v", frameType, err))
	}
	return data
}

// expectFrame decodes data and checks that it is a frameType frame.
func expectFrame(data []byte, frameType string) error {
	var frame bootstrapFrame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("decoding handshake frame: %w", err)
	}
	if frame.Type != frameType {
		return fmt.Errorf("handshake: expected %s frame, got %q", frameType, frame.Type)
	}
	return nil
}
