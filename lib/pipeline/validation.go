// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// ValidationStage enforces the spec §3 source/payload invariants plus
// the payload-level invariants recovered from original_source's
// protocol/validation.rs (SPEC_FULL.md supplemented feature):
// actuator id non-zero, window position <= 100, battery level <= 100,
// and a nil (all-zero) device MAC is never a valid source.
type ValidationStage struct {
	priority int
}

// NewValidationStage returns a ValidationStage at the given priority
// (use DefaultPriority if the caller has no specific ordering need).
func NewValidationStage(priority int) *ValidationStage {
	return &ValidationStage{priority: priority}
}

func (s *ValidationStage) Name() string     { return "validation" }
func (s *ValidationStage) Priority() int    { return s.priority }
func (s *ValidationStage) ShouldExecute(protocol.Message, *ProcessContext) bool { return true }

func (s *ValidationStage) Process(msg protocol.Message, ctx *ProcessContext) Verdict {
	if err := msg.Validate(); err != nil {
		return Err(&InvalidMessageError{Reason: err.Error()})
	}
	if mac, ok := msg.Header.Source.DeviceMAC(); ok && mac == ([6]byte{}) {
		return Err(&InvalidMessageError{Reason: "device source mac is all-zero"})
	}
	if reason, bad := validatePayload(msg.Payload); bad {
		return Err(&InvalidMessageError{Reason: reason})
	}
	return Continue(msg)
}

func validatePayload(p protocol.MessagePayload) (reason string, invalid bool) {
	switch v := p.(type) {
	case protocol.DeviceReport:
		if v.VariantKind == protocol.DeviceReportStatus {
			if v.ActuatorID == 0 {
				return "actuator id must be non-zero", true
			}
			if v.WindowData.TargetPosition > 100 {
				return "window target_position out of range 0..100", true
			}
			if v.BatteryLevel > 100 {
				return "battery level out of range 0..100", true
			}
		}
	case protocol.EdgeCommand:
		if v.VariantKind == protocol.EdgeCmdActuator {
			if v.ActuatorID == 0 {
				return "actuator id must be non-zero", true
			}
			if v.Command.Kind == protocol.ActuatorSetWindowPosition && v.Command.Position > 100 {
				return "actuator command position out of range 0..100", true
			}
		}
	case protocol.CloudCommand:
		if v.Kind == protocol.CloudControlDevices {
			for id, cmd := range v.Commands {
				if id == 0 {
					return "control-devices entry has a zero device id", true
				}
				if cmd.Kind == protocol.ActuatorSetWindowPosition && cmd.Position > 100 {
					return "control-devices entry position out of range 0..100", true
				}
			}
		}
	case protocol.EdgeReport:
		if v.VariantKind == protocol.EdgeReportDeviceStatus {
			for id, entry := range v.Devices {
				if id == 0 {
					return "device-status entry has a zero device id", true
				}
				if entry.Battery > 100 {
					return "device-status entry battery level out of range 0..100", true
				}
				if entry.Data.Kind == protocol.DeviceValueWindow && entry.Data.Window.TargetPosition > 100 {
					return "device-status entry window position out of range 0..100", true
				}
			}
		}
	}
	return "", false
}
