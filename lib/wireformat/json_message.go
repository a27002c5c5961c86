// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// jsonTime renders as ISO-8601 with millisecond precision and a
// trailing Z, per spec §6, rather than Go's default nanosecond RFC3339.
type jsonTime time.Time

const jsonTimeLayout = "2006-01-02T15:04:05.000Z"

func (t jsonTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(jsonTimeLayout))
}

func (t *jsonTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(jsonTimeLayout, s)
	if err != nil {
		// Forward-compatibility per spec §4.4: accept any RFC3339
		// variant a future producer might emit with more/fewer
		// fractional digits rather than hard-failing decode.
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	*t = jsonTime(parsed.UTC())
	return nil
}

// jsonNodeID is the externally-tagged wire shape for protocol.NodeId.
type jsonNodeID struct {
	Kind   string  `json:"kind"`
	Edge   *uint8  `json:"edge,omitempty"`
	Device *string `json:"device,omitempty"` // "aa:bb:cc:dd:ee:ff"
}

func macToString(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

func macFromString(s string) ([6]byte, error) {
	var mac [6]byte
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return mac, fmt.Errorf("wireformat: invalid device MAC %q", s)
	}
	return mac, nil
}

func nodeIDToJSON(n protocol.NodeId) jsonNodeID {
	switch n.Kind() {
	case protocol.KindCloud:
		return jsonNodeID{Kind: "cloud"}
	case protocol.KindEdge:
		id, _ := n.EdgeID()
		return jsonNodeID{Kind: "edge", Edge: &id}
	case protocol.KindDevice:
		mac, _ := n.DeviceMAC()
		s := macToString(mac)
		return jsonNodeID{Kind: "device", Device: &s}
	default:
		return jsonNodeID{Kind: "any"}
	}
}

func nodeIDFromJSON(j jsonNodeID) (protocol.NodeId, error) {
	switch j.Kind {
	case "cloud":
		return protocol.NewCloud(), nil
	case "edge":
		if j.Edge == nil {
			return protocol.NodeId{}, fmt.Errorf("wireformat: edge NodeId missing edge id")
		}
		return protocol.NewEdge(*j.Edge), nil
	case "device":
		if j.Device == nil {
			return protocol.NodeId{}, fmt.Errorf("wireformat: device NodeId missing mac")
		}
		mac, err := macFromString(*j.Device)
		if err != nil {
			return protocol.NodeId{}, err
		}
		return protocol.NewDevice(mac), nil
	case "any":
		return protocol.NewAny(), nil
	default:
		return protocol.NodeId{}, fmt.Errorf("wireformat: unknown NodeId kind %q", j.Kind)
	}
}

type jsonHeader struct {
	ID        uuid.UUID  `json:"id"`
	Timestamp jsonTime   `json:"timestamp"`
	Priority  string     `json:"priority"`
	Source    jsonNodeID `json:"source"`
	Target    jsonNodeID `json:"target"`
}

type jsonMessage struct {
	Header  jsonHeader      `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

func priorityToJSON(p protocol.Priority) string {
	if p == protocol.PriorityEmergency {
		return "Emergency"
	}
	return "Regular"
}

func priorityFromJSON(s string) protocol.Priority {
	if s == "Emergency" {
		return protocol.PriorityEmergency
	}
	return protocol.PriorityRegular
}

// EncodeMessageJSON renders m in the externally-tagged JSON encoding
// (spec §6): `{"<PayloadKind>": {...}}`, unknown-key-tolerant on
// decode for forward compatibility (spec §4.4).
func EncodeMessageJSON(m protocol.Message) ([]byte, error) {
	payloadBody, err := encodePayloadJSON(m.Payload)
	if err != nil {
		return nil, err
	}
	tag := map[string]json.RawMessage{m.Payload.Kind().String(): payloadBody}
	tagged, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	jm := jsonMessage{
		Header: jsonHeader{
			ID:        m.Header.ID,
			Timestamp: jsonTime(m.Header.Timestamp),
			Priority:  priorityToJSON(m.Header.Priority),
			Source:    nodeIDToJSON(m.Header.Source),
			Target:    nodeIDToJSON(m.Header.Target),
		},
		Payload: tagged,
	}
	return json.Marshal(jm)
}

// DecodeMessageJSON parses a Message from its JSON encoding. Unknown
// object keys are silently ignored, matching encoding/json's default
// decode behavior (spec §4.4 forward compatibility), except in the
// payload envelope, which must hold exactly one variant tag.
func DecodeMessageJSON(data []byte) (protocol.Message, error) {
	var jm jsonMessage
	if err := json.Unmarshal(data, &jm); err != nil {
		return protocol.Message{}, fmt.Errorf("wireformat: decode json message: %w", err)
	}
	source, err := nodeIDFromJSON(jm.Header.Source)
	if err != nil {
		return protocol.Message{}, err
	}
	target, err := nodeIDFromJSON(jm.Header.Target)
	if err != nil {
		return protocol.Message{}, err
	}
	var tag map[string]json.RawMessage
	if err := json.Unmarshal(jm.Payload, &tag); err != nil {
		return protocol.Message{}, fmt.Errorf("wireformat: decode json payload envelope: %w", err)
	}
	if len(tag) != 1 {
		return protocol.Message{}, fmt.Errorf("wireformat: json payload must have exactly one tag, got %d", len(tag))
	}
	var kind string
	var body json.RawMessage
	for k, v := range tag {
		kind, body = k, v
	}
	payload, err := decodePayloadJSON(kind, body)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{
		Header: protocol.MessageHeader{
			ID:        jm.Header.ID,
			Timestamp: time.Time(jm.Header.Timestamp),
			Priority:  priorityFromJSON(jm.Header.Priority),
			Source:    source,
			Target:    target,
		},
		Payload: payload,
	}, nil
}
