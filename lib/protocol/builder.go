// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"time"

	"github.com/google/uuid"
)

// UuidGenerator is the capability MessageBuilder needs to mint message
// ids; lib/idgen provides the concrete DeviceBased and Random
// implementations. Defined here (rather than imported from lib/idgen)
// to keep this package free of a dependency edge back onto idgen.
type UuidGenerator interface {
	Generate() uuid.UUID
}

// Clock returns the current wall-clock time; injected so builders are
// deterministic in tests, mirroring how lib/timesync takes an uptime
// function rather than calling time.Now() directly.
type Clock func() time.Time

// MessageBuilder is the canonical way to mint a Message with a fresh id
// and timestamp, grounded on lumisync-embedded's MessageBuilder
// (device_status/actuator_command convenience constructors).
type MessageBuilder struct {
	Gen   UuidGenerator
	Clock Clock
}

func NewMessageBuilder(gen UuidGenerator, clock Clock) *MessageBuilder {
	if clock == nil {
		clock = time.Now
	}
	return &MessageBuilder{Gen: gen, Clock: clock}
}

func (b *MessageBuilder) header(priority Priority, source, target NodeId) MessageHeader {
	return MessageHeader{
		ID:        b.Gen.Generate(),
		Timestamp: b.Clock(),
		Priority:  priority,
		Source:    source,
		Target:    target,
	}
}

// DeviceStatus builds a DeviceReport::Status message from a device to
// its edge.
func (b *MessageBuilder) DeviceStatus(deviceMAC [6]byte, edge uint8, actuatorID DeviceId, window WindowData, battery uint8, errorCode uint16, priority Priority) Message {
	return Message{
		Header: b.header(priority, NewDevice(deviceMAC), NewEdge(edge)),
		Payload: DeviceReport{
			VariantKind:  DeviceReportStatus,
			ActuatorID:   actuatorID,
			WindowData:   window,
			BatteryLevel: battery,
			ErrorCode:    errorCode,
		},
	}
}

// ErrorReply builds an Error payload addressed back to source, replying
// to originalMsgID (nil when the failure predates a parsed id).
func (b *MessageBuilder) ErrorReply(source, target NodeId, originalMsgID *uuid.UUID, code ErrorCode, message string) Message {
	return Message{
		Header: b.header(PriorityRegular, source, target),
		Payload: ErrorPayload{
			OriginalMsgID: originalMsgID,
			Code:          code,
			Message:       message,
		},
	}
}

// ActuatorCommand builds an EdgeCommand::Actuator message from an edge
// down to a device.
func (b *MessageBuilder) ActuatorCommand(edge uint8, deviceMAC [6]byte, actuatorID DeviceId, sequence uint32, cmd ActuatorCommand) Message {
	return Message{
		Header: b.header(PriorityRegular, NewEdge(edge), NewDevice(deviceMAC)),
		Payload: EdgeCommand{
			VariantKind: EdgeCmdActuator,
			ActuatorID:  actuatorID,
			Sequence:    sequence,
			Command:     cmd,
		},
	}
}
