// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import "github.com/google/uuid"

// PayloadType is the routing key: the outermost variant tag of
// MessagePayload (spec §3/§4.9 "Payload kind"). Binary wire ordinals
// follow declaration order in spec §3 and are normative (§9).
type PayloadType uint8

const (
	PayloadCloudCommand PayloadType = iota
	PayloadEdgeReport
	PayloadEdgeCommand
	PayloadDeviceReport
	PayloadTimeSync
	PayloadAcknowledge
	PayloadError
)

func (t PayloadType) String() string {
	switch t {
	case PayloadCloudCommand:
		return "CloudCommand"
	case PayloadEdgeReport:
		return "EdgeReport"
	case PayloadEdgeCommand:
		return "EdgeCommand"
	case PayloadDeviceReport:
		return "DeviceReport"
	case PayloadTimeSync:
		return "TimeSync"
	case PayloadAcknowledge:
		return "Acknowledge"
	case PayloadError:
		return "Error"
	default:
		return "Unknown"
	}
}

// MessagePayload is the sum type carried by every Message. Each
// top-level variant below implements it by returning its own constant
// PayloadType.
type MessagePayload interface {
	Kind() PayloadType
}

// DeviceId is the router/actuator-facing 24-bit device identifier. See
// spec §9 Open Questions: the reference mapping from DeviceId to a BLE
// MAC is a placeholder (0x12,0x34,0x56 prefix + the low 3 bytes of the
// id); see lib/protocol.DeviceIDToMAC.
type DeviceId uint32

// DeviceIDToMAC implements the reference (placeholder) mapping noted in
// spec §9: a fixed 0x12:0x34:0x56 prefix followed by the low 3 bytes of
// id. Implementers are free to substitute a real lookup table without
// changing the wire format, since the mapping never appears on the
// wire -- only the resulting NodeId/DeviceId do.
func DeviceIDToMAC(id DeviceId) [6]byte {
	return [6]byte{0x12, 0x34, 0x56, byte(id >> 16), byte(id >> 8), byte(id)}
}

// ---- ActuatorCommand ----

// ActuatorCommandKind tags the ActuatorCommand sum type. Only
// SetWindowPosition is defined by spec §3; the kind byte keeps room for
// future additions without another wire-format revision.
type ActuatorCommandKind uint8

const (
	ActuatorSetWindowPosition ActuatorCommandKind = iota
)

// ActuatorCommand is a command aimed at a single actuator.
type ActuatorCommand struct {
	Kind     ActuatorCommandKind
	Position uint8 // valid for SetWindowPosition, 0..100
}

func SetWindowPosition(pos uint8) ActuatorCommand {
	return ActuatorCommand{Kind: ActuatorSetWindowPosition, Position: pos}
}

// ---- WindowData / SensorData / DeviceStatus (spec §3) ----

type WindowData struct {
	TargetPosition uint8 // 0..100
}

type SensorReading struct {
	Temperature float32
	Illuminance int32
	Humidity    float32
}

// DeviceValueKind tags the DeviceValue sum type carried inside
// DeviceStatus entries.
type DeviceValueKind uint8

const (
	DeviceValueWindow DeviceValueKind = iota
	DeviceValueSensor
)

// DeviceValue is either a WindowData or a SensorReading, as reported by
// EdgeReport::DeviceStatus entries.
type DeviceValue struct {
	Kind   DeviceValueKind
	Window WindowData
	Sensor SensorReading
}

func WindowValue(w WindowData) DeviceValue     { return DeviceValue{Kind: DeviceValueWindow, Window: w} }
func SensorValue(s SensorReading) DeviceValue  { return DeviceValue{Kind: DeviceValueSensor, Sensor: s} }

// DeviceStatusEntry is one entry of EdgeReport::DeviceStatus's device
// map (named to avoid colliding with the DeviceReport::Status variant,
// which spec §3 also happens to call "Status").
type DeviceStatusEntry struct {
	Data      DeviceValue
	Battery   uint8
	RSSI      int8
	UpdatedAt uint64 // ms since epoch
}

// ---- CloudCommand ----

type CloudCommandKind uint8

const (
	CloudConfigureRegion CloudCommandKind = iota
	CloudConfigureWindow
	CloudControlDevices
	CloudSendAnalyse
)

// Plan is the (intentionally thin) configuration payload carried by
// ConfigureRegion/ConfigureWindow. Spec §9 notes that the reference
// ConfigureWindow handler ignores Plan's contents and always sets
// position=50; we keep Plan structurally present on the wire without
// committing to a fully specified plan-evaluation model.
type Plan struct {
	Name string
}

type CloudCommand struct {
	Kind CloudCommandKind

	// ConfigureRegion / ConfigureWindow
	Region uint32
	Window uint32
	Plan   Plan

	// ControlDevices
	Commands map[DeviceId]ActuatorCommand

	// SendAnalyse
	Windows    []uint32
	Reason     string
	Confidence float32 // in [0,1]
}

func (c CloudCommand) Kind() PayloadType { return PayloadCloudCommand }

// ---- EdgeReport ----

type EdgeReportKind uint8

const (
	EdgeReportDeviceStatus EdgeReportKind = iota
	EdgeReportHealth
)

type EdgeReport struct {
	VariantKind EdgeReportKind

	// DeviceStatus
	Devices map[DeviceId]DeviceStatusEntry

	// HealthReport
	CPUPercent float32
	MemPercent float32
}

func (e EdgeReport) Kind() PayloadType { return PayloadEdgeReport }

// ---- EdgeCommand ----

type EdgeCommandKind uint8

const (
	EdgeCmdActuator EdgeCommandKind = iota
	EdgeCmdRequestHealthStatus
)

type EdgeCommand struct {
	VariantKind EdgeCommandKind

	// Actuator
	ActuatorID DeviceId
	Sequence   uint32
	Command    ActuatorCommand
}

func (e EdgeCommand) Kind() PayloadType { return PayloadEdgeCommand }

// ---- DeviceReport ----

type DeviceReportKind uint8

const (
	DeviceReportStatus DeviceReportKind = iota
	DeviceReportSensor
)

type DeviceReport struct {
	VariantKind DeviceReportKind

	// Status
	ActuatorID   DeviceId
	WindowData   WindowData
	BatteryLevel uint8 // 0..100
	ErrorCode    uint16

	// SensorData
	Sensor SensorReading
}

func (d DeviceReport) Kind() PayloadType { return PayloadDeviceReport }

// ---- TimeSync ----

type TimeSyncKind uint8

const (
	TimeSyncRequest TimeSyncKind = iota
	TimeSyncResponse
	TimeSyncBroadcast
	TimeSyncStatusQuery
	TimeSyncStatusResponse
)

// SyncStateWire mirrors SyncStatus for wire purposes (see lib/timesync
// for the richer runtime type; this is the flattened wire tag used in
// StatusResponse).
type SyncStateWire uint8

const (
	SyncStateUnsynced SyncStateWire = iota
	SyncStateSynced
	SyncStateFailed
)

type TimeSync struct {
	VariantKind TimeSyncKind

	// Request
	Sequence    uint32
	SendTime    *uint64 // optional local uptime ms
	PrecisionMs uint32

	// Response
	RequestSeq       uint32
	RequestRecvTime  uint64
	ResponseSendTime uint64
	ServerTime       uint64
	OffsetMs         int64
	AccuracyMs       uint32

	// Broadcast
	Timestamp uint64

	// StatusResponse
	State SyncStateWire
}

func (t TimeSync) Kind() PayloadType { return PayloadTimeSync }

// ---- Acknowledge / Error ----

type AckStatus uint8

const (
	AckOK AckStatus = iota
	AckRejected
)

type Acknowledge struct {
	OriginalMsgID uuid.UUID
	Status        AckStatus
	Details       *string
}

func (Acknowledge) Kind() PayloadType { return PayloadAcknowledge }

// ErrorCode enumerates the reply codes a peer may see in an
// Error payload, corresponding to the taxonomy in spec §7.
type ErrorCode uint16

const (
	ErrCodeSerializationError ErrorCode = iota
	ErrCodePermissionDenied
	ErrCodeInternalError
	ErrCodeResourceExhausted
	ErrCodeInvalidRequest
)

type ErrorPayload struct {
	OriginalMsgID *uuid.UUID
	Code          ErrorCode
	Message       string
}

func (ErrorPayload) Kind() PayloadType { return PayloadError }
