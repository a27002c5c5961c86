// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// EncodeMessageBinary renders m in the positional binary encoding.
// Variant ordinals follow declaration order in spec §3, which is the
// normative wire contract (§9).
func EncodeMessageBinary(m protocol.Message) ([]byte, error) {
	w := NewWriter()
	encodeHeader(w, m.Header)
	encodePayload(w, m.Payload)
	if w.Error() != nil {
		return nil, w.Error()
	}
	return w.Bytes(), nil
}

// DecodeMessageBinary parses a Message from its positional binary
// encoding.
func DecodeMessageBinary(data []byte) (protocol.Message, error) {
	r := NewReader(data)
	hdr := decodeHeader(r)
	payload := decodePayload(r)
	if r.Error() != nil {
		return protocol.Message{}, r.Error()
	}
	return protocol.Message{Header: hdr, Payload: payload}, nil
}

func encodeNodeID(w *Writer, n protocol.NodeId) {
	w.WriteUint8(uint8(n.Kind()))
	switch n.Kind() {
	case protocol.KindEdge:
		id, _ := n.EdgeID()
		w.WriteUint8(id)
	case protocol.KindDevice:
		mac, _ := n.DeviceMAC()
		w.WriteBytesRaw(mac[:])
	}
}

func decodeNodeID(r *Reader) protocol.NodeId {
	kind := protocol.NodeKind(r.ReadUint8())
	switch kind {
	case protocol.KindCloud:
		return protocol.NewCloud()
	case protocol.KindEdge:
		return protocol.NewEdge(r.ReadUint8())
	case protocol.KindDevice:
		var mac [6]byte
		copy(mac[:], r.ReadBytesRaw(6))
		return protocol.NewDevice(mac)
	case protocol.KindAny:
		return protocol.NewAny()
	default:
		r.fail(fmt.Errorf("wireformat: unknown NodeId kind %d", kind))
		return protocol.NodeId{}
	}
}

func encodeHeader(w *Writer, h protocol.MessageHeader) {
	w.WriteBytesRaw(h.ID[:])
	w.WriteUint64(uint64(h.Timestamp.UnixMilli()))
	w.WriteUint8(uint8(h.Priority))
	encodeNodeID(w, h.Source)
	encodeNodeID(w, h.Target)
}

func decodeHeader(r *Reader) protocol.MessageHeader {
	var id uuid.UUID
	copy(id[:], r.ReadBytesRaw(16))
	ms := r.ReadUint64()
	priority := protocol.Priority(r.ReadUint8())
	source := decodeNodeID(r)
	target := decodeNodeID(r)
	return protocol.MessageHeader{
		ID:        id,
		Timestamp: msToTime(ms),
		Priority:  priority,
		Source:    source,
		Target:    target,
	}
}

func encodeWindowData(w *Writer, wd protocol.WindowData) {
	w.WriteUint8(wd.TargetPosition)
}

func decodeWindowData(r *Reader) protocol.WindowData {
	return protocol.WindowData{TargetPosition: r.ReadUint8()}
}

func encodeSensorReading(w *Writer, s protocol.SensorReading) {
	w.WriteFloat32(s.Temperature)
	w.WriteInt32(s.Illuminance)
	w.WriteFloat32(s.Humidity)
}

func decodeSensorReading(r *Reader) protocol.SensorReading {
	return protocol.SensorReading{
		Temperature: r.ReadFloat32(),
		Illuminance: r.ReadInt32(),
		Humidity:    r.ReadFloat32(),
	}
}

func encodeDeviceValue(w *Writer, v protocol.DeviceValue) {
	w.WriteUint8(uint8(v.Kind))
	switch v.Kind {
	case protocol.DeviceValueWindow:
		encodeWindowData(w, v.Window)
	case protocol.DeviceValueSensor:
		encodeSensorReading(w, v.Sensor)
	}
}

func decodeDeviceValue(r *Reader) protocol.DeviceValue {
	kind := protocol.DeviceValueKind(r.ReadUint8())
	switch kind {
	case protocol.DeviceValueWindow:
		return protocol.WindowValue(decodeWindowData(r))
	case protocol.DeviceValueSensor:
		return protocol.SensorValue(decodeSensorReading(r))
	default:
		r.fail(fmt.Errorf("wireformat: unknown DeviceValue kind %d", kind))
		return protocol.DeviceValue{}
	}
}

func encodeActuatorCommand(w *Writer, c protocol.ActuatorCommand) {
	w.WriteUint8(uint8(c.Kind))
	switch c.Kind {
	case protocol.ActuatorSetWindowPosition:
		w.WriteUint8(c.Position)
	}
}

func decodeActuatorCommand(r *Reader) protocol.ActuatorCommand {
	kind := protocol.ActuatorCommandKind(r.ReadUint8())
	switch kind {
	case protocol.ActuatorSetWindowPosition:
		return protocol.SetWindowPosition(r.ReadUint8())
	default:
		r.fail(fmt.Errorf("wireformat: unknown ActuatorCommand kind %d", kind))
		return protocol.ActuatorCommand{}
	}
}

func encodePayload(w *Writer, p protocol.MessagePayload) {
	w.WriteUint8(uint8(p.Kind()))
	switch v := p.(type) {
	case protocol.CloudCommand:
		encodeCloudCommand(w, v)
	case protocol.EdgeReport:
		encodeEdgeReport(w, v)
	case protocol.EdgeCommand:
		encodeEdgeCommand(w, v)
	case protocol.DeviceReport:
		encodeDeviceReport(w, v)
	case protocol.TimeSync:
		encodeTimeSync(w, v)
	case protocol.Acknowledge:
		encodeAcknowledge(w, v)
	case protocol.ErrorPayload:
		encodeErrorPayload(w, v)
	default:
		w.err = fmt.Errorf("wireformat: unknown payload type %T", p)
	}
}

func decodePayload(r *Reader) protocol.MessagePayload {
	kind := protocol.PayloadType(r.ReadUint8())
	switch kind {
	case protocol.PayloadCloudCommand:
		return decodeCloudCommand(r)
	case protocol.PayloadEdgeReport:
		return decodeEdgeReport(r)
	case protocol.PayloadEdgeCommand:
		return decodeEdgeCommand(r)
	case protocol.PayloadDeviceReport:
		return decodeDeviceReport(r)
	case protocol.PayloadTimeSync:
		return decodeTimeSync(r)
	case protocol.PayloadAcknowledge:
		return decodeAcknowledge(r)
	case protocol.PayloadError:
		return decodeErrorPayload(r)
	default:
		r.fail(fmt.Errorf("wireformat: unknown payload kind %d", kind))
		return nil
	}
}

func encodeCloudCommand(w *Writer, c protocol.CloudCommand) {
	w.WriteUint8(uint8(c.Kind))
	switch c.Kind {
	case protocol.CloudConfigureRegion:
		w.WriteUint32(c.Region)
		w.WriteString(c.Plan.Name)
	case protocol.CloudConfigureWindow:
		w.WriteUint32(c.Window)
		w.WriteString(c.Plan.Name)
	case protocol.CloudControlDevices:
		w.WriteUint32(c.Region)
		w.WriteVarUint(uint64(len(c.Commands)))
		for id, cmd := range c.Commands {
			w.WriteUint32(uint32(id))
			encodeActuatorCommand(w, cmd)
		}
	case protocol.CloudSendAnalyse:
		w.WriteVarUint(uint64(len(c.Windows)))
		for _, win := range c.Windows {
			w.WriteUint32(win)
		}
		w.WriteString(c.Reason)
		w.WriteFloat32(c.Confidence)
	}
}

func decodeCloudCommand(r *Reader) protocol.CloudCommand {
	kind := protocol.CloudCommandKind(r.ReadUint8())
	c := protocol.CloudCommand{Kind: kind}
	switch kind {
	case protocol.CloudConfigureRegion:
		c.Region = r.ReadUint32()
		c.Plan = protocol.Plan{Name: r.ReadString()}
	case protocol.CloudConfigureWindow:
		c.Window = r.ReadUint32()
		c.Plan = protocol.Plan{Name: r.ReadString()}
	case protocol.CloudControlDevices:
		c.Region = r.ReadUint32()
		n := r.ReadVarUint()
		c.Commands = make(map[protocol.DeviceId]protocol.ActuatorCommand, n)
		for i := uint64(0); i < n; i++ {
			id := protocol.DeviceId(r.ReadUint32())
			c.Commands[id] = decodeActuatorCommand(r)
		}
	case protocol.CloudSendAnalyse:
		n := r.ReadVarUint()
		c.Windows = make([]uint32, n)
		for i := range c.Windows {
			c.Windows[i] = r.ReadUint32()
		}
		c.Reason = r.ReadString()
		c.Confidence = r.ReadFloat32()
	default:
		r.fail(fmt.Errorf("wireformat: unknown CloudCommand kind %d", kind))
	}
	return c
}

func encodeEdgeReport(w *Writer, e protocol.EdgeReport) {
	w.WriteUint8(uint8(e.VariantKind))
	switch e.VariantKind {
	case protocol.EdgeReportDeviceStatus:
		w.WriteVarUint(uint64(len(e.Devices)))
		for id, entry := range e.Devices {
			w.WriteUint32(uint32(id))
			encodeDeviceValue(w, entry.Data)
			w.WriteUint8(entry.Battery)
			w.WriteInt8(entry.RSSI)
			w.WriteUint64(entry.UpdatedAt)
		}
	case protocol.EdgeReportHealth:
		w.WriteFloat32(e.CPUPercent)
		w.WriteFloat32(e.MemPercent)
	}
}

func decodeEdgeReport(r *Reader) protocol.EdgeReport {
	kind := protocol.EdgeReportKind(r.ReadUint8())
	e := protocol.EdgeReport{VariantKind: kind}
	switch kind {
	case protocol.EdgeReportDeviceStatus:
		n := r.ReadVarUint()
		e.Devices = make(map[protocol.DeviceId]protocol.DeviceStatusEntry, n)
		for i := uint64(0); i < n; i++ {
			id := protocol.DeviceId(r.ReadUint32())
			data := decodeDeviceValue(r)
			battery := r.ReadUint8()
			rssi := r.ReadInt8()
			updated := r.ReadUint64()
			e.Devices[id] = protocol.DeviceStatusEntry{Data: data, Battery: battery, RSSI: rssi, UpdatedAt: updated}
		}
	case protocol.EdgeReportHealth:
		e.CPUPercent = r.ReadFloat32()
		e.MemPercent = r.ReadFloat32()
	default:
		r.fail(fmt.Errorf("wireformat: unknown EdgeReport kind %d", kind))
	}
	return e
}

func encodeEdgeCommand(w *Writer, e protocol.EdgeCommand) {
	w.WriteUint8(uint8(e.VariantKind))
	switch e.VariantKind {
	case protocol.EdgeCmdActuator:
		w.WriteUint32(uint32(e.ActuatorID))
		w.WriteUint32(e.Sequence)
		encodeActuatorCommand(w, e.Command)
	case protocol.EdgeCmdRequestHealthStatus:
		// no fields
	}
}

func decodeEdgeCommand(r *Reader) protocol.EdgeCommand {
	kind := protocol.EdgeCommandKind(r.ReadUint8())
	e := protocol.EdgeCommand{VariantKind: kind}
	switch kind {
	case protocol.EdgeCmdActuator:
		e.ActuatorID = protocol.DeviceId(r.ReadUint32())
		e.Sequence = r.ReadUint32()
		e.Command = decodeActuatorCommand(r)
	case protocol.EdgeCmdRequestHealthStatus:
	default:
		r.fail(fmt.Errorf("wireformat: unknown EdgeCommand kind %d", kind))
	}
	return e
}

func encodeDeviceReport(w *Writer, d protocol.DeviceReport) {
	w.WriteUint8(uint8(d.VariantKind))
	switch d.VariantKind {
	case protocol.DeviceReportStatus:
		w.WriteUint32(uint32(d.ActuatorID))
		encodeWindowData(w, d.WindowData)
		w.WriteUint8(d.BatteryLevel)
		w.WriteUint16(d.ErrorCode)
	case protocol.DeviceReportSensor:
		w.WriteUint32(uint32(d.ActuatorID))
		encodeSensorReading(w, d.Sensor)
	}
}

func decodeDeviceReport(r *Reader) protocol.DeviceReport {
	kind := protocol.DeviceReportKind(r.ReadUint8())
	d := protocol.DeviceReport{VariantKind: kind}
	switch kind {
	case protocol.DeviceReportStatus:
		d.ActuatorID = protocol.DeviceId(r.ReadUint32())
		d.WindowData = decodeWindowData(r)
		d.BatteryLevel = r.ReadUint8()
		d.ErrorCode = r.ReadUint16()
	case protocol.DeviceReportSensor:
		d.ActuatorID = protocol.DeviceId(r.ReadUint32())
		d.Sensor = decodeSensorReading(r)
	default:
		r.fail(fmt.Errorf("wireformat: unknown DeviceReport kind %d", kind))
	}
	return d
}

func encodeTimeSync(w *Writer, t protocol.TimeSync) {
	w.WriteUint8(uint8(t.VariantKind))
	switch t.VariantKind {
	case protocol.TimeSyncRequest:
		w.WriteUint32(t.Sequence)
		w.WriteBool(t.SendTime != nil)
		if t.SendTime != nil {
			w.WriteUint64(*t.SendTime)
		}
		w.WriteUint32(t.PrecisionMs)
	case protocol.TimeSyncResponse:
		w.WriteUint32(t.RequestSeq)
		w.WriteUint64(t.RequestRecvTime)
		w.WriteUint64(t.ResponseSendTime)
		w.WriteUint64(t.ServerTime)
		w.WriteInt64(t.OffsetMs)
		w.WriteUint32(t.AccuracyMs)
	case protocol.TimeSyncBroadcast:
		w.WriteUint64(t.Timestamp)
		w.WriteInt64(t.OffsetMs)
		w.WriteUint32(t.AccuracyMs)
	case protocol.TimeSyncStatusQuery:
		// no fields
	case protocol.TimeSyncStatusResponse:
		w.WriteUint8(uint8(t.State))
		w.WriteInt64(t.OffsetMs)
		w.WriteUint32(t.AccuracyMs)
	}
}

func decodeTimeSync(r *Reader) protocol.TimeSync {
	kind := protocol.TimeSyncKind(r.ReadUint8())
	t := protocol.TimeSync{VariantKind: kind}
	switch kind {
	case protocol.TimeSyncRequest:
		t.Sequence = r.ReadUint32()
		if r.ReadBool() {
			v := r.ReadUint64()
			t.SendTime = &v
		}
		t.PrecisionMs = r.ReadUint32()
	case protocol.TimeSyncResponse:
		t.RequestSeq = r.ReadUint32()
		t.RequestRecvTime = r.ReadUint64()
		t.ResponseSendTime = r.ReadUint64()
		t.ServerTime = r.ReadUint64()
		t.OffsetMs = r.ReadInt64()
		t.AccuracyMs = r.ReadUint32()
	case protocol.TimeSyncBroadcast:
		t.Timestamp = r.ReadUint64()
		t.OffsetMs = r.ReadInt64()
		t.AccuracyMs = r.ReadUint32()
	case protocol.TimeSyncStatusQuery:
	case protocol.TimeSyncStatusResponse:
		t.State = protocol.SyncStateWire(r.ReadUint8())
		t.OffsetMs = r.ReadInt64()
		t.AccuracyMs = r.ReadUint32()
	default:
		r.fail(fmt.Errorf("wireformat: unknown TimeSync kind %d", kind))
	}
	return t
}

func encodeAcknowledge(w *Writer, a protocol.Acknowledge) {
	w.WriteBytesRaw(a.OriginalMsgID[:])
	w.WriteUint8(uint8(a.Status))
	w.WriteBool(a.Details != nil)
	if a.Details != nil {
		w.WriteString(*a.Details)
	}
}

func decodeAcknowledge(r *Reader) protocol.Acknowledge {
	var id uuid.UUID
	copy(id[:], r.ReadBytesRaw(16))
	status := protocol.AckStatus(r.ReadUint8())
	var details *string
	if r.ReadBool() {
		s := r.ReadString()
		details = &s
	}
	return protocol.Acknowledge{OriginalMsgID: id, Status: status, Details: details}
}

func encodeErrorPayload(w *Writer, e protocol.ErrorPayload) {
	w.WriteBool(e.OriginalMsgID != nil)
	if e.OriginalMsgID != nil {
		w.WriteBytesRaw(e.OriginalMsgID[:])
	}
	w.WriteUint16(uint16(e.Code))
	w.WriteString(e.Message)
}

func decodeErrorPayload(r *Reader) protocol.ErrorPayload {
	var idPtr *uuid.UUID
	if r.ReadBool() {
		var id uuid.UUID
		copy(id[:], r.ReadBytesRaw(16))
		idPtr = &id
	}
	code := protocol.ErrorCode(r.ReadUint16())
	msg := r.ReadString()
	return protocol.ErrorPayload{OriginalMsgID: idPtr, Code: code, Message: msg}
}
