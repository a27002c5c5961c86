// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import (
	"fmt"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// Protocol is the one-byte tag embedded in a frame header (spec §4.3)
// that selects which of the two payload encodings below was used.
type Protocol uint8

const (
	ProtocolPostcard Protocol = 0
	ProtocolJSON     Protocol = 1
)

func (p Protocol) String() string {
	if p == ProtocolJSON {
		return "json"
	}
	return "postcard"
}

// Valid reports whether p is a recognised tag; unknown values are a
// protocol error per spec §4.3.
func (p Protocol) Valid() bool { return p == ProtocolPostcard || p == ProtocolJSON }

// Encode serializes m using the encoding named by proto.
func Encode(proto Protocol, m protocol.Message) ([]byte, error) {
	switch proto {
	case ProtocolPostcard:
		return EncodeMessageBinary(m)
	case ProtocolJSON:
		return EncodeMessageJSON(m)
	default:
		return nil, fmt.Errorf("wireformat: unknown protocol tag %d", proto)
	}
}

// Decode parses a Message previously produced by Encode(proto, ...).
func Decode(proto Protocol, data []byte) (protocol.Message, error) {
	switch proto {
	case ProtocolPostcard:
		return DecodeMessageBinary(data)
	case ProtocolJSON:
		return DecodeMessageJSON(data)
	default:
		return protocol.Message{}, fmt.Errorf("wireformat: unknown protocol tag %d", proto)
	}
}
