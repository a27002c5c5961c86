// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// jsonActuatorCommand is the externally-tagged JSON shape of
// protocol.ActuatorCommand.
type jsonActuatorCommand struct {
	SetWindowPosition *uint8 `json:"SetWindowPosition,omitempty"`
}

func actuatorCommandToJSON(c protocol.ActuatorCommand) jsonActuatorCommand {
	switch c.Kind {
	case protocol.ActuatorSetWindowPosition:
		pos := c.Position
		return jsonActuatorCommand{SetWindowPosition: &pos}
	default:
		return jsonActuatorCommand{}
	}
}

func actuatorCommandFromJSON(j jsonActuatorCommand) (protocol.ActuatorCommand, error) {
	if j.SetWindowPosition != nil {
		return protocol.SetWindowPosition(*j.SetWindowPosition), nil
	}
	return protocol.ActuatorCommand{}, fmt.Errorf("wireformat: empty ActuatorCommand")
}

type jsonWindowData struct {
	TargetPosition uint8 `json:"target_position"`
}

type jsonSensorReading struct {
	Temperature float32 `json:"temperature"`
	Illuminance int32   `json:"illuminance"`
	Humidity    float32 `json:"humidity"`
}

func windowDataToJSON(w protocol.WindowData) jsonWindowData {
	return jsonWindowData{TargetPosition: w.TargetPosition}
}

func sensorReadingToJSON(s protocol.SensorReading) jsonSensorReading {
	return jsonSensorReading{Temperature: s.Temperature, Illuminance: s.Illuminance, Humidity: s.Humidity}
}

type jsonDeviceValue struct {
	Window *jsonWindowData    `json:"Window,omitempty"`
	Sensor *jsonSensorReading `json:"Sensor,omitempty"`
}

func deviceValueToJSON(v protocol.DeviceValue) jsonDeviceValue {
	switch v.Kind {
	case protocol.DeviceValueWindow:
		w := windowDataToJSON(v.Window)
		return jsonDeviceValue{Window: &w}
	case protocol.DeviceValueSensor:
		s := sensorReadingToJSON(v.Sensor)
		return jsonDeviceValue{Sensor: &s}
	default:
		return jsonDeviceValue{}
	}
}

func deviceValueFromJSON(j jsonDeviceValue) (protocol.DeviceValue, error) {
	switch {
	case j.Window != nil:
		return protocol.WindowValue(protocol.WindowData{TargetPosition: j.Window.TargetPosition}), nil
	case j.Sensor != nil:
		return protocol.SensorValue(protocol.SensorReading{
			Temperature: j.Sensor.Temperature,
			Illuminance: j.Sensor.Illuminance,
			Humidity:    j.Sensor.Humidity,
		}), nil
	default:
		return protocol.DeviceValue{}, fmt.Errorf("wireformat: empty DeviceValue")
	}
}

type jsonDeviceStatusEntry struct {
	Data      jsonDeviceValue `json:"data"`
	Battery   uint8           `json:"battery"`
	RSSI      int8            `json:"rssi"`
	UpdatedAt uint64          `json:"updated_at"`
}

// ---- CloudCommand ----

type jsonCloudCommand struct {
	ConfigureRegion *struct {
		Region uint32      `json:"region"`
		Plan   protocol.Plan `json:"plan"`
	} `json:"ConfigureRegion,omitempty"`
	ConfigureWindow *struct {
		Window uint32        `json:"window"`
		Plan   protocol.Plan `json:"plan"`
	} `json:"ConfigureWindow,omitempty"`
	ControlDevices *struct {
		Region   uint32                                `json:"region"`
		Commands map[protocol.DeviceId]jsonActuatorCommand `json:"commands"`
	} `json:"ControlDevices,omitempty"`
	SendAnalyse *struct {
		Windows    []uint32 `json:"windows"`
		Reason     string   `json:"reason"`
		Confidence float32  `json:"confidence"`
	} `json:"SendAnalyse,omitempty"`
}

func encodePayloadJSON(p protocol.MessagePayload) (json.RawMessage, error) {
	switch v := p.(type) {
	case protocol.CloudCommand:
		return json.Marshal(cloudCommandToJSON(v))
	case protocol.EdgeReport:
		return json.Marshal(edgeReportToJSON(v))
	case protocol.EdgeCommand:
		return json.Marshal(edgeCommandToJSON(v))
	case protocol.DeviceReport:
		return json.Marshal(deviceReportToJSON(v))
	case protocol.TimeSync:
		return json.Marshal(timeSyncToJSON(v))
	case protocol.Acknowledge:
		return json.Marshal(acknowledgeToJSON(v))
	case protocol.ErrorPayload:
		return json.Marshal(errorPayloadToJSON(v))
	default:
		return nil, fmt.Errorf("wireformat: unknown payload type %T", p)
	}
}

func decodePayloadJSON(kind string, body json.RawMessage) (protocol.MessagePayload, error) {
	switch kind {
	case protocol.PayloadCloudCommand.String():
		var j jsonCloudCommand
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return cloudCommandFromJSON(j)
	case protocol.PayloadEdgeReport.String():
		var j jsonEdgeReport
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return edgeReportFromJSON(j)
	case protocol.PayloadEdgeCommand.String():
		var j jsonEdgeCommand
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return edgeCommandFromJSON(j)
	case protocol.PayloadDeviceReport.String():
		var j jsonDeviceReport
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return deviceReportFromJSON(j)
	case protocol.PayloadTimeSync.String():
		var j jsonTimeSync
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return timeSyncFromJSON(j)
	case protocol.PayloadAcknowledge.String():
		var j jsonAcknowledge
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return acknowledgeFromJSON(j)
	case protocol.PayloadError.String():
		var j jsonErrorPayload
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		return errorPayloadFromJSON(j)
	default:
		return nil, fmt.Errorf("wireformat: unknown payload kind %q", kind)
	}
}

func cloudCommandToJSON(c protocol.CloudCommand) jsonCloudCommand {
	var j jsonCloudCommand
	switch c.Kind {
	case protocol.CloudConfigureRegion:
		j.ConfigureRegion = &struct {
			Region uint32        `json:"region"`
			Plan   protocol.Plan `json:"plan"`
		}{Region: c.Region, Plan: c.Plan}
	case protocol.CloudConfigureWindow:
		j.ConfigureWindow = &struct {
			Window uint32        `json:"window"`
			Plan   protocol.Plan `json:"plan"`
		}{Window: c.Window, Plan: c.Plan}
	case protocol.CloudControlDevices:
		cmds := make(map[protocol.DeviceId]jsonActuatorCommand, len(c.Commands))
		for id, cmd := range c.Commands {
			cmds[id] = actuatorCommandToJSON(cmd)
		}
		j.ControlDevices = &struct {
			Region   uint32                                    `json:"region"`
			Commands map[protocol.DeviceId]jsonActuatorCommand `json:"commands"`
		}{Region: c.Region, Commands: cmds}
	case protocol.CloudSendAnalyse:
		j.SendAnalyse = &struct {
			Windows    []uint32 `json:"windows"`
			Reason     string   `json:"reason"`
			Confidence float32  `json:"confidence"`
		}{Windows: c.Windows, Reason: c.Reason, Confidence: c.Confidence}
	}
	return j
}

func cloudCommandFromJSON(j jsonCloudCommand) (protocol.CloudCommand, error) {
	switch {
	case j.ConfigureRegion != nil:
		return protocol.CloudCommand{Kind: protocol.CloudConfigureRegion, Region: j.ConfigureRegion.Region, Plan: j.ConfigureRegion.Plan}, nil
	case j.ConfigureWindow != nil:
		return protocol.CloudCommand{Kind: protocol.CloudConfigureWindow, Window: j.ConfigureWindow.Window, Plan: j.ConfigureWindow.Plan}, nil
	case j.ControlDevices != nil:
		cmds := make(map[protocol.DeviceId]protocol.ActuatorCommand, len(j.ControlDevices.Commands))
		for id, cmd := range j.ControlDevices.Commands {
			ac, err := actuatorCommandFromJSON(cmd)
			if err != nil {
				return protocol.CloudCommand{}, err
			}
			cmds[id] = ac
		}
		return protocol.CloudCommand{Kind: protocol.CloudControlDevices, Region: j.ControlDevices.Region, Commands: cmds}, nil
	case j.SendAnalyse != nil:
		return protocol.CloudCommand{
			Kind:       protocol.CloudSendAnalyse,
			Windows:    j.SendAnalyse.Windows,
			Reason:     j.SendAnalyse.Reason,
			Confidence: j.SendAnalyse.Confidence,
		}, nil
	default:
		return protocol.CloudCommand{}, fmt.Errorf("wireformat: empty CloudCommand")
	}
}

// ---- EdgeReport ----

type jsonEdgeReport struct {
	DeviceStatus *struct {
		Devices map[protocol.DeviceId]jsonDeviceStatusEntry `json:"devices"`
	} `json:"DeviceStatus,omitempty"`
	HealthReport *struct {
		CPU float32 `json:"cpu"`
		Mem float32 `json:"mem"`
	} `json:"HealthReport,omitempty"`
}

func edgeReportToJSON(e protocol.EdgeReport) jsonEdgeReport {
	var j jsonEdgeReport
	switch e.VariantKind {
	case protocol.EdgeReportDeviceStatus:
		devs := make(map[protocol.DeviceId]jsonDeviceStatusEntry, len(e.Devices))
		for id, entry := range e.Devices {
			devs[id] = jsonDeviceStatusEntry{
				Data:      deviceValueToJSON(entry.Data),
				Battery:   entry.Battery,
				RSSI:      entry.RSSI,
				UpdatedAt: entry.UpdatedAt,
			}
		}
		j.DeviceStatus = &struct {
			Devices map[protocol.DeviceId]jsonDeviceStatusEntry `json:"devices"`
		}{Devices: devs}
	case protocol.EdgeReportHealth:
		j.HealthReport = &struct {
			CPU float32 `json:"cpu"`
			Mem float32 `json:"mem"`
		}{CPU: e.CPUPercent, Mem: e.MemPercent}
	}
	return j
}

func edgeReportFromJSON(j jsonEdgeReport) (protocol.EdgeReport, error) {
	switch {
	case j.DeviceStatus != nil:
		devs := make(map[protocol.DeviceId]protocol.DeviceStatusEntry, len(j.DeviceStatus.Devices))
		for id, entry := range j.DeviceStatus.Devices {
			dv, err := deviceValueFromJSON(entry.Data)
			if err != nil {
				return protocol.EdgeReport{}, err
			}
			devs[id] = protocol.DeviceStatusEntry{Data: dv, Battery: entry.Battery, RSSI: entry.RSSI, UpdatedAt: entry.UpdatedAt}
		}
		return protocol.EdgeReport{VariantKind: protocol.EdgeReportDeviceStatus, Devices: devs}, nil
	case j.HealthReport != nil:
		return protocol.EdgeReport{VariantKind: protocol.EdgeReportHealth, CPUPercent: j.HealthReport.CPU, MemPercent: j.HealthReport.Mem}, nil
	default:
		return protocol.EdgeReport{}, fmt.Errorf("wireformat: empty EdgeReport")
	}
}

// ---- EdgeCommand ----

type jsonEdgeCommand struct {
	Actuator *struct {
		ActuatorID protocol.DeviceId   `json:"actuator_id"`
		Sequence   uint32              `json:"sequence"`
		Command    jsonActuatorCommand `json:"command"`
	} `json:"Actuator,omitempty"`
	RequestHealthStatus *struct{} `json:"RequestHealthStatus,omitempty"`
}

func edgeCommandToJSON(e protocol.EdgeCommand) jsonEdgeCommand {
	var j jsonEdgeCommand
	switch e.VariantKind {
	case protocol.EdgeCmdActuator:
		j.Actuator = &struct {
			ActuatorID protocol.DeviceId   `json:"actuator_id"`
			Sequence   uint32              `json:"sequence"`
			Command    jsonActuatorCommand `json:"command"`
		}{ActuatorID: e.ActuatorID, Sequence: e.Sequence, Command: actuatorCommandToJSON(e.Command)}
	case protocol.EdgeCmdRequestHealthStatus:
		j.RequestHealthStatus = &struct{}{}
	}
	return j
}

func edgeCommandFromJSON(j jsonEdgeCommand) (protocol.EdgeCommand, error) {
	switch {
	case j.Actuator != nil:
		cmd, err := actuatorCommandFromJSON(j.Actuator.Command)
		if err != nil {
			return protocol.EdgeCommand{}, err
		}
		return protocol.EdgeCommand{VariantKind: protocol.EdgeCmdActuator, ActuatorID: j.Actuator.ActuatorID, Sequence: j.Actuator.Sequence, Command: cmd}, nil
	case j.RequestHealthStatus != nil:
		return protocol.EdgeCommand{VariantKind: protocol.EdgeCmdRequestHealthStatus}, nil
	default:
		return protocol.EdgeCommand{}, fmt.Errorf("wireformat: empty EdgeCommand")
	}
}

// ---- DeviceReport ----

type jsonDeviceReport struct {
	Status *struct {
		ActuatorID protocol.DeviceId `json:"actuator_id"`
		WindowData jsonWindowData    `json:"window_data"`
		Battery    uint8             `json:"battery"`
		ErrorCode  uint16            `json:"error_code"`
	} `json:"Status,omitempty"`
	SensorData *struct {
		ActuatorID protocol.DeviceId `json:"actuator_id"`
		Sensor     jsonSensorReading `json:"sensor"`
	} `json:"SensorData,omitempty"`
}

func deviceReportToJSON(d protocol.DeviceReport) jsonDeviceReport {
	var j jsonDeviceReport
	switch d.VariantKind {
	case protocol.DeviceReportStatus:
		j.Status = &struct {
			ActuatorID protocol.DeviceId `json:"actuator_id"`
			WindowData jsonWindowData    `json:"window_data"`
			Battery    uint8             `json:"battery"`
			ErrorCode  uint16            `json:"error_code"`
		}{ActuatorID: d.ActuatorID, WindowData: windowDataToJSON(d.WindowData), Battery: d.BatteryLevel, ErrorCode: d.ErrorCode}
	case protocol.DeviceReportSensor:
		j.SensorData = &struct {
			ActuatorID protocol.DeviceId `json:"actuator_id"`
			Sensor     jsonSensorReading `json:"sensor"`
		}{ActuatorID: d.ActuatorID, Sensor: sensorReadingToJSON(d.Sensor)}
	}
	return j
}

func deviceReportFromJSON(j jsonDeviceReport) (protocol.DeviceReport, error) {
	switch {
	case j.Status != nil:
		return protocol.DeviceReport{
			VariantKind:  protocol.DeviceReportStatus,
			ActuatorID:   j.Status.ActuatorID,
			WindowData:   protocol.WindowData{TargetPosition: j.Status.WindowData.TargetPosition},
			BatteryLevel: j.Status.Battery,
			ErrorCode:    j.Status.ErrorCode,
		}, nil
	case j.SensorData != nil:
		return protocol.DeviceReport{
			VariantKind: protocol.DeviceReportSensor,
			ActuatorID:  j.SensorData.ActuatorID,
			Sensor: protocol.SensorReading{
				Temperature: j.SensorData.Sensor.Temperature,
				Illuminance: j.SensorData.Sensor.Illuminance,
				Humidity:    j.SensorData.Sensor.Humidity,
			},
		}, nil
	default:
		return protocol.DeviceReport{}, fmt.Errorf("wireformat: empty DeviceReport")
	}
}

// ---- TimeSync ----

type jsonTimeSync struct {
	Request *struct {
		Sequence    uint32  `json:"sequence"`
		SendTime    *uint64 `json:"send_time,omitempty"`
		PrecisionMs uint32  `json:"precision_ms"`
	} `json:"Request,omitempty"`
	Response *struct {
		RequestSeq       uint32 `json:"request_seq"`
		RequestRecvTime  uint64 `json:"request_recv_time"`
		ResponseSendTime uint64 `json:"response_send_time"`
		ServerTime       uint64 `json:"server_time"`
		OffsetMs         int64  `json:"offset_ms"`
		AccuracyMs       uint32 `json:"accuracy_ms"`
	} `json:"Response,omitempty"`
	Broadcast *struct {
		Timestamp  uint64 `json:"timestamp"`
		OffsetMs   int64  `json:"offset_ms"`
		AccuracyMs uint32 `json:"accuracy_ms"`
	} `json:"Broadcast,omitempty"`
	StatusQuery *struct{} `json:"StatusQuery,omitempty"`
	StatusResponse *struct {
		State      string `json:"state"`
		OffsetMs   int64  `json:"offset_ms"`
		AccuracyMs uint32 `json:"accuracy_ms"`
	} `json:"StatusResponse,omitempty"`
}

func syncStateToJSON(s protocol.SyncStateWire) string {
	switch s {
	case protocol.SyncStateSynced:
		return "Synced"
	case protocol.SyncStateFailed:
		return "Failed"
	default:
		return "Unsynced"
	}
}

func syncStateFromJSON(s string) protocol.SyncStateWire {
	switch s {
	case "Synced":
		return protocol.SyncStateSynced
	case "Failed":
		return protocol.SyncStateFailed
	default:
		return protocol.SyncStateUnsynced
	}
}

func timeSyncToJSON(t protocol.TimeSync) jsonTimeSync {
	var j jsonTimeSync
	switch t.VariantKind {
	case protocol.TimeSyncRequest:
		j.Request = &struct {
			Sequence    uint32  `json:"sequence"`
			SendTime    *uint64 `json:"send_time,omitempty"`
			PrecisionMs uint32  `json:"precision_ms"`
		}{Sequence: t.Sequence, SendTime: t.SendTime, PrecisionMs: t.PrecisionMs}
	case protocol.TimeSyncResponse:
		j.Response = &struct {
			RequestSeq       uint32 `json:"request_seq"`
			RequestRecvTime  uint64 `json:"request_recv_time"`
			ResponseSendTime uint64 `json:"response_send_time"`
			ServerTime       uint64 `json:"server_time"`
			OffsetMs         int64  `json:"offset_ms"`
			AccuracyMs       uint32 `json:"accuracy_ms"`
		}{
			RequestSeq: t.RequestSeq, RequestRecvTime: t.RequestRecvTime,
			ResponseSendTime: t.ResponseSendTime, ServerTime: t.ServerTime,
			OffsetMs: t.OffsetMs, AccuracyMs: t.AccuracyMs,
		}
	case protocol.TimeSyncBroadcast:
		j.Broadcast = &struct {
			Timestamp  uint64 `json:"timestamp"`
			OffsetMs   int64  `json:"offset_ms"`
			AccuracyMs uint32 `json:"accuracy_ms"`
		}{Timestamp: t.Timestamp, OffsetMs: t.OffsetMs, AccuracyMs: t.AccuracyMs}
	case protocol.TimeSyncStatusQuery:
		j.StatusQuery = &struct{}{}
	case protocol.TimeSyncStatusResponse:
		j.StatusResponse = &struct {
			State      string `json:"state"`
			OffsetMs   int64  `json:"offset_ms"`
			AccuracyMs uint32 `json:"accuracy_ms"`
		}{State: syncStateToJSON(t.State), OffsetMs: t.OffsetMs, AccuracyMs: t.AccuracyMs}
	}
	return j
}

func timeSyncFromJSON(j jsonTimeSync) (protocol.TimeSync, error) {
	switch {
	case j.Request != nil:
		return protocol.TimeSync{
			VariantKind: protocol.TimeSyncRequest,
			Sequence:    j.Request.Sequence,
			SendTime:    j.Request.SendTime,
			PrecisionMs: j.Request.PrecisionMs,
		}, nil
	case j.Response != nil:
		return protocol.TimeSync{
			VariantKind:      protocol.TimeSyncResponse,
			RequestSeq:       j.Response.RequestSeq,
			RequestRecvTime:  j.Response.RequestRecvTime,
			ResponseSendTime: j.Response.ResponseSendTime,
			ServerTime:       j.Response.ServerTime,
			OffsetMs:         j.Response.OffsetMs,
			AccuracyMs:       j.Response.AccuracyMs,
		}, nil
	case j.Broadcast != nil:
		return protocol.TimeSync{
			VariantKind: protocol.TimeSyncBroadcast,
			Timestamp:   j.Broadcast.Timestamp,
			OffsetMs:    j.Broadcast.OffsetMs,
			AccuracyMs:  j.Broadcast.AccuracyMs,
		}, nil
	case j.StatusQuery != nil:
		return protocol.TimeSync{VariantKind: protocol.TimeSyncStatusQuery}, nil
	case j.StatusResponse != nil:
		return protocol.TimeSync{
			VariantKind: protocol.TimeSyncStatusResponse,
			State:       syncStateFromJSON(j.StatusResponse.State),
			OffsetMs:    j.StatusResponse.OffsetMs,
			AccuracyMs:  j.StatusResponse.AccuracyMs,
		}, nil
	default:
		return protocol.TimeSync{}, fmt.Errorf("wireformat: empty TimeSync")
	}
}

// ---- Acknowledge / Error ----

type jsonAcknowledge struct {
	OriginalMsgID uuid.UUID `json:"original_msg_id"`
	Status        string    `json:"status"`
	Details       *string   `json:"details,omitempty"`
}

func acknowledgeToJSON(a protocol.Acknowledge) jsonAcknowledge {
	status := "Ok"
	if a.Status == protocol.AckRejected {
		status = "Rejected"
	}
	return jsonAcknowledge{OriginalMsgID: a.OriginalMsgID, Status: status, Details: a.Details}
}

func acknowledgeFromJSON(j jsonAcknowledge) (protocol.Acknowledge, error) {
	status := protocol.AckOK
	if j.Status == "Rejected" {
		status = protocol.AckRejected
	}
	return protocol.Acknowledge{OriginalMsgID: j.OriginalMsgID, Status: status, Details: j.Details}, nil
}

type jsonErrorPayload struct {
	OriginalMsgID *uuid.UUID `json:"original_msg_id,omitempty"`
	Code          string     `json:"code"`
	Message       string     `json:"message"`
}

var errorCodeNames = map[protocol.ErrorCode]string{
	protocol.ErrCodeSerializationError: "SerializationError",
	protocol.ErrCodePermissionDenied:   "PermissionDenied",
	protocol.ErrCodeInternalError:      "InternalError",
	protocol.ErrCodeResourceExhausted:  "ResourceExhausted",
	protocol.ErrCodeInvalidRequest:     "InvalidRequest",
}

func errorPayloadToJSON(e protocol.ErrorPayload) jsonErrorPayload {
	return jsonErrorPayload{OriginalMsgID: e.OriginalMsgID, Code: errorCodeNames[e.Code], Message: e.Message}
}

func errorPayloadFromJSON(j jsonErrorPayload) (protocol.ErrorPayload, error) {
	var code protocol.ErrorCode
	found := false
	for k, v := range errorCodeNames {
		if v == j.Code {
			code, found = k, true
			break
		}
	}
	if !found {
		return protocol.ErrorPayload{}, fmt.Errorf("wireformat: unknown error code %q", j.Code)
	}
	return protocol.ErrorPayload{OriginalMsgID: j.OriginalMsgID, Code: code, Message: j.Message}, nil
}
