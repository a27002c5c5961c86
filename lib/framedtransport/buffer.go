// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package framedtransport

import (
	"errors"

	"github.com/sieluna/blindsfabric/lib/framing"
	"github.com/sieluna/blindsfabric/lib/wireformat"
)

// ErrBufferOverflow is returned by MessageBuffer.Feed when accumulating
// chunk would exceed the buffer's fixed capacity.
var ErrBufferOverflow = errors.New("framedtransport: message buffer capacity exceeded")

// MessageBuffer is the capacity-bounded accumulation buffer constrained
// devices use in place of the full streaming FramedTransport (SPEC_FULL.md
// supplemented feature, grounded on lumisync-embedded's
// protocol/buffer.rs): BLE GATT writes arrive as fixed-size chunks well
// under one frame, so a device just appends each chunk and asks
// TryDecode whether a complete frame has accumulated yet.
type MessageBuffer struct {
	capacity int
	buf      []byte
}

// NewMessageBuffer allocates a MessageBuffer that will refuse to grow
// past capacity bytes.
func NewMessageBuffer(capacity int) *MessageBuffer {
	return &MessageBuffer{capacity: capacity, buf: make([]byte, 0, capacity)}
}

// Feed appends chunk, failing with ErrBufferOverflow if doing so would
// exceed capacity -- callers should Reset and drop the connection, same
// as any other rawtransport error (spec §4.5's "drop and re-establish").
func (b *MessageBuffer) Feed(chunk []byte) error {
	if len(b.buf)+len(chunk) > b.capacity {
		return ErrBufferOverflow
	}
	b.buf = append(b.buf, chunk...)
	return nil
}

// Len reports how many bytes are currently accumulated.
func (b *MessageBuffer) Len() int { return len(b.buf) }

// Reset drops all accumulated bytes, keeping the underlying array.
func (b *MessageBuffer) Reset() { b.buf = b.buf[:0] }

// TryDecode attempts to carve one complete frame out of the
// accumulated bytes, decode its payload, and drain the consumed bytes.
// It returns framing.NeedMoreError (via errors.As) when more chunks are
// still required.
func (b *MessageBuffer) TryDecode(maxMessageSize uint32) (Decoded, error) {
	// Constrained devices behind MessageBuffer never negotiate the
	// compression variant (spec: no compression below BLE), so bit 2
	// stays a reserved, must-be-zero bit here.
	hdr, payload, consumed, decErr := framing.DecodeFrame(b.buf, maxMessageSize, false)
	if decErr != nil {
		if _, ok := framing.AsNeedMore(decErr); ok {
			return Decoded{}, decErr
		}
		// Drop the bad frame's bytes (if any were identified) and
		// surface the error; CrcMismatch still reports a consumed
		// count so the stream can resynchronise.
		if consumed > 0 {
			b.drain(consumed)
		}
		return Decoded{}, decErr
	}

	body := payload
	if hdr.HasCompressed() {
		var err error
		body, err = decompress(payload)
		if err != nil {
			b.drain(consumed)
			return Decoded{}, err
		}
	}
	msg, err := wireformat.Decode(hdr.Protocol, body)
	b.drain(consumed)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Header: hdr, Message: msg}, nil
}

func (b *MessageBuffer) drain(n int) {
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:len(b.buf)-n]
}
