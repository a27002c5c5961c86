// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package framedtransport composes C3's frame codec on top of a C5
// rawtransport.Transport, implementing spec §4.6's receive/send
// algorithms: a growable RX buffer, header-then-payload-then-CRC
// carving, and C2 payload deserialization once a frame is complete.
package framedtransport

import (
	"errors"
	"fmt"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/framing"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
	"github.com/sieluna/blindsfabric/lib/wireformat"
)

// ErrNoCompleteFrame is returned by TryReceiveMessage (the cooperative,
// non-blocking flavour) when the RX buffer does not yet hold a full
// frame and the underlying transport had no more bytes to offer right
// now; callers should come back later once more data may have arrived.
var ErrNoCompleteFrame = errors.New("framedtransport: no complete frame buffered yet")

// Decoded is one fully decoded frame: its header (protocol tag, flags,
// optional stream id) and the reassembled Message.
type Decoded struct {
	Header  framing.Header
	Message protocol.Message
}

// FramedTransport implements both the blocking (ReceiveMessage) and
// cooperative (TryReceiveMessage) flavours spec §4.6 describes over one
// shared RX buffer state machine.
type FramedTransport struct {
	raw rawtransport.Transport
	cfg config.FramedTransportConfig

	rx      []byte
	readBuf []byte
	isBLE   bool // compression is never engaged over a BLE transport
}

// New wraps raw with the framing/wireformat layers. isBLE disables
// optional compression regardless of cfg.CompressThreshold, matching
// spec's "never for BLE (constrained) transports" rule.
func New(raw rawtransport.Transport, cfg config.FramedTransportConfig, isBLE bool) *FramedTransport {
	return &FramedTransport{
		raw:     raw,
		cfg:     cfg,
		rx:      make([]byte, 0, cfg.InitialBufferCapacity),
		readBuf: make([]byte, 4096),
		isBLE:   isBLE,
	}
}

// SendMessage encodes msg with proto, optionally compresses and
// CRC-protects it per cfg, and writes the whole frame in one call
// (spec §4.6's send algorithm).
func (t *FramedTransport) SendMessage(msg protocol.Message, proto wireformat.Protocol, streamID uint16) error {
	body, err := wireformat.Encode(proto, msg)
	if err != nil {
		return fmt.Errorf("framedtransport: encode: %w", err)
	}

	flags := framing.Flags(0)
	if t.cfg.CRC {
		flags |= framing.FlagCRC
	}
	if streamID != 0 {
		flags |= framing.FlagStream
	}
	if !t.isBLE && t.cfg.CompressionVariant && t.cfg.CompressThreshold > 0 && len(body) >= t.cfg.CompressThreshold {
		compressed, err := compress(body)
		if err != nil {
			return err
		}
		body = compressed
		flags |= framing.FlagCompressed
	}

	maxSize := t.cfg.MaxMessageSize
	if maxSize == 0 {
		maxSize = framing.DefaultMaxMessageSize
	}
	if uint32(len(body)) > maxSize {
		return framing.ErrMessageTooLarge
	}

	frame := framing.EncodeFrame(proto, flags, streamID, body)
	return t.raw.SendBytes(frame)
}

// SendMessageDefault is SendMessage using cfg.DefaultProtocol with no
// stream id, the common case for a connection that never multiplexes.
func (t *FramedTransport) SendMessageDefault(msg protocol.Message) error {
	return t.SendMessage(msg, wireformat.Protocol(t.cfg.DefaultProtocol), 0)
}

// ReceiveMessage blocks, reading from the underlying transport until
// one complete frame has arrived, then decodes and returns it. Only
// meant for transports whose ReceiveBytes itself blocks (TCP, UDP); a
// non-blocking transport like the BLE adapters should drive
// TryReceiveMessage from an event loop instead.
func (t *FramedTransport) ReceiveMessage() (Decoded, error) {
	for {
		if d, ok, err := t.tryDecodeBuffered(); ok || err != nil {
			return d, err
		}
		if err := t.fill(true); err != nil {
			return Decoded{}, err
		}
	}
}

// TryReceiveMessage is the cooperative flavour: it makes one
// non-blocking attempt to advance the RX buffer and returns
// ErrNoCompleteFrame if a full frame still isn't available, so a
// caller running an event loop can interleave other work instead of
// blocking a goroutine per connection.
func (t *FramedTransport) TryReceiveMessage() (Decoded, error) {
	if d, ok, err := t.tryDecodeBuffered(); ok || err != nil {
		return d, err
	}
	if err := t.fill(false); err != nil {
		return Decoded{}, err
	}
	if d, ok, err := t.tryDecodeBuffered(); ok || err != nil {
		return d, err
	}
	return Decoded{}, ErrNoCompleteFrame
}

func (t *FramedTransport) tryDecodeBuffered() (Decoded, bool, error) {
	maxSize := t.cfg.MaxMessageSize
	if maxSize == 0 {
		maxSize = framing.DefaultMaxMessageSize
	}
	hdr, payload, consumed, err := framing.DecodeFrame(t.rx, maxSize, t.cfg.CompressionVariant)
	if err != nil {
		if _, ok := framing.AsNeedMore(err); ok {
			return Decoded{}, false, nil
		}
		if consumed > 0 {
			t.drain(consumed)
		}
		return Decoded{}, true, err
	}

	body := payload
	if hdr.HasCompressed() {
		decompressed, derr := decompress(payload)
		if derr != nil {
			t.drain(consumed)
			return Decoded{}, true, derr
		}
		body = decompressed
	}
	msg, err := wireformat.Decode(hdr.Protocol, body)
	t.drain(consumed)
	if err != nil {
		return Decoded{}, true, fmt.Errorf("framedtransport: decode payload: %w", err)
	}
	return Decoded{Header: hdr, Message: msg}, true, nil
}

// fill reads one chunk from the raw transport into the RX buffer.
// blocking selects between ReceiveBytes's blocking and non-blocking
// behaviours by transport kind; a non-blocking read that yields no
// data (ok=false, err=nil) is reported via ErrNoCompleteFrame upstream.
func (t *FramedTransport) fill(blocking bool) error {
	n, ok, err := t.raw.ReceiveBytes(t.readBuf)
	if err != nil {
		return fmt.Errorf("framedtransport: receive: %w", err)
	}
	if !ok {
		if blocking {
			return fmt.Errorf("framedtransport: receive: %w", rawtransport.ErrNetworkError)
		}
		return nil
	}
	t.rx = append(t.rx, t.readBuf[:n]...)
	return nil
}

func (t *FramedTransport) drain(n int) {
	copy(t.rx, t.rx[n:])
	t.rx = t.rx[:len(t.rx)-n]
}
