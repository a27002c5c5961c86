// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

func sampleControlDevices() protocol.Message {
	return protocol.Message{
		Header: protocol.MessageHeader{
			ID:        uuid.New(),
			Timestamp: time.Now().UTC().Truncate(time.Millisecond),
			Priority:  protocol.PriorityRegular,
			Source:    protocol.NewCloud(),
			Target:    protocol.NewEdge(1),
		},
		Payload: protocol.CloudCommand{
			Kind:   protocol.CloudControlDevices,
			Region: 7,
			Commands: map[protocol.DeviceId]protocol.ActuatorCommand{
				1: protocol.SetWindowPosition(10),
				2: protocol.SetWindowPosition(50),
				3: protocol.SetWindowPosition(90),
			},
		},
	}
}

func allSampleMessages() []protocol.Message {
	mac := [6]byte{0x12, 0x34, 0x56, 0x01, 0x02, 0x03}
	sendTime := uint64(1000)
	details := "bad window"
	errID := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msgs := []protocol.Message{
		sampleControlDevices(),
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityEmergency, Source: protocol.NewCloud(), Target: protocol.NewEdge(2)},
			Payload: protocol.CloudCommand{Kind: protocol.CloudConfigureRegion, Region: 3, Plan: protocol.Plan{Name: "winter"}},
		},
		{
			Header: protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.EdgeReport{
				VariantKind: protocol.EdgeReportDeviceStatus,
				Devices: map[protocol.DeviceId]protocol.DeviceStatusEntry{
					5: {Data: protocol.WindowValue(protocol.WindowData{TargetPosition: 42}), Battery: 80, RSSI: -50, UpdatedAt: 123456},
					6: {Data: protocol.SensorValue(protocol.SensorReading{Temperature: 21.5, Illuminance: 300, Humidity: 45.2}), Battery: 60, RSSI: -60, UpdatedAt: 654321},
				},
			},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.EdgeReport{VariantKind: protocol.EdgeReportHealth, CPUPercent: 12.5, MemPercent: 33.3},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewDevice(mac)},
			Payload: protocol.EdgeCommand{VariantKind: protocol.EdgeCmdActuator, ActuatorID: 0x123456, Sequence: 1, Command: protocol.SetWindowPosition(75)},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewDevice(mac)},
			Payload: protocol.EdgeCommand{VariantKind: protocol.EdgeCmdRequestHealthStatus},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewDevice(mac), Target: protocol.NewEdge(1)},
			Payload: protocol.DeviceReport{VariantKind: protocol.DeviceReportStatus, ActuatorID: 0x123456, WindowData: protocol.WindowData{TargetPosition: 75}, BatteryLevel: 90, ErrorCode: 0},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewDevice(mac), Target: protocol.NewEdge(1)},
			Payload: protocol.DeviceReport{VariantKind: protocol.DeviceReportSensor, ActuatorID: 0x123456, Sensor: protocol.SensorReading{Temperature: 22.1, Illuminance: 500, Humidity: 40}},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewDevice(mac), Target: protocol.NewEdge(1)},
			Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncRequest, Sequence: 1, SendTime: &sendTime, PrecisionMs: 10},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewDevice(mac)},
			Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncResponse, RequestSeq: 1, RequestRecvTime: 1100, ResponseSendTime: 1150, ServerTime: 2000, OffsetMs: 100, AccuracyMs: 5},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewAny()},
			Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncBroadcast, Timestamp: 3000, OffsetMs: -20, AccuracyMs: 8},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewDevice(mac), Target: protocol.NewEdge(1)},
			Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncStatusQuery},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewDevice(mac)},
			Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncStatusResponse, State: protocol.SyncStateSynced, OffsetMs: 15, AccuracyMs: 3},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.Acknowledge{OriginalMsgID: uuid.New(), Status: protocol.AckOK, Details: nil},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.Acknowledge{OriginalMsgID: uuid.New(), Status: protocol.AckRejected, Details: &details},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.ErrorPayload{OriginalMsgID: &errID, Code: protocol.ErrCodeInvalidRequest, Message: "bad position"},
		},
		{
			Header:  protocol.MessageHeader{ID: uuid.New(), Timestamp: now, Priority: protocol.PriorityRegular, Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
			Payload: protocol.ErrorPayload{OriginalMsgID: nil, Code: protocol.ErrCodeInternalError, Message: "boom"},
		},
	}
	return msgs
}

func TestBinaryRoundTrip(t *testing.T) {
	for i, m := range allSampleMessages() {
		b, err := EncodeMessageBinary(m)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := DecodeMessageBinary(b)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		assertMessageEqual(t, i, "binary", m, got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for i, m := range allSampleMessages() {
		b, err := EncodeMessageJSON(m)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := DecodeMessageJSON(b)
		if err != nil {
			t.Fatalf("case %d: decode: %v\n%s", i, err, b)
		}
		assertMessageEqual(t, i, "json", m, got)
	}
}

func TestSerializerEquivalence(t *testing.T) {
	for i, m := range allSampleMessages() {
		jb, err := EncodeMessageJSON(m)
		if err != nil {
			t.Fatalf("case %d: json encode: %v", i, err)
		}
		bb, err := EncodeMessageBinary(m)
		if err != nil {
			t.Fatalf("case %d: bin encode: %v", i, err)
		}
		fromJSON, err := DecodeMessageJSON(jb)
		if err != nil {
			t.Fatalf("case %d: json decode: %v", i, err)
		}
		fromBin, err := DecodeMessageBinary(bb)
		if err != nil {
			t.Fatalf("case %d: bin decode: %v", i, err)
		}
		assertMessageEqual(t, i, "json-vs-bin", fromJSON, fromBin)
	}
}

func TestBinaryCompactness(t *testing.T) {
	m := sampleControlDevices()
	jb, err := EncodeMessageJSON(m)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := EncodeMessageBinary(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(bb) >= len(jb) {
		t.Fatalf("expected binary encoding (%d bytes) to be smaller than json (%d bytes)", len(bb), len(jb))
	}
}

func TestTamperChangesBinaryEncoding(t *testing.T) {
	// Covered end-to-end in lib/framing; here we only check that a
	// single flipped payload byte changes the binary encoding's bytes
	// (sanity for the framing-level CRC test to build on).
	m := sampleControlDevices()
	bb, err := EncodeMessageBinary(m)
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), bb...)
	tampered[len(tampered)-1] ^= 0xFF
	if string(tampered) == string(bb) {
		t.Fatal("tampering did not change the buffer")
	}
}

func assertMessageEqual(t *testing.T, i int, mode string, want, got protocol.Message) {
	t.Helper()
	if want.Header.ID != got.Header.ID {
		t.Errorf("case %d (%s): id mismatch: %v != %v", i, mode, want.Header.ID, got.Header.ID)
	}
	if !want.Header.Timestamp.Equal(got.Header.Timestamp) {
		t.Errorf("case %d (%s): timestamp mismatch: %v != %v", i, mode, want.Header.Timestamp, got.Header.Timestamp)
	}
	if want.Header.Priority != got.Header.Priority {
		t.Errorf("case %d (%s): priority mismatch", i, mode)
	}
	if !want.Header.Source.Equal(got.Header.Source) {
		t.Errorf("case %d (%s): source mismatch: %v != %v", i, mode, want.Header.Source, got.Header.Source)
	}
	if !want.Header.Target.Equal(got.Header.Target) {
		t.Errorf("case %d (%s): target mismatch: %v != %v", i, mode, want.Header.Target, got.Header.Target)
	}
	if want.Payload.Kind() != got.Payload.Kind() {
		t.Errorf("case %d (%s): payload kind mismatch", i, mode)
	}
}
