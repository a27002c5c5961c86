// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"time"

	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/router"
)

// routerErrorCode maps a router.Dispatch error to the Error payload code
// spec §7's taxonomy assigns it (duplicated from cmd/cloudd: each
// daemon is its own main package).
func routerErrorCode(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, router.ErrHandlerBusy):
		return protocol.ErrCodeResourceExhausted
	case errors.Is(err, router.ErrNotForThisNode), errors.Is(err, router.ErrNoHandler):
		return protocol.ErrCodeInvalidRequest
	default:
		return protocol.ErrCodeInternalError
	}
}

// deviceReportHandler feeds DeviceReport::Status messages into the edge
// analyzer (spec §4.12), re-reports device state upward as an
// EdgeReport, and replies with an EdgeCommand::Actuator to the same
// connection whenever the analyzer has an immediate hint (e.g. closing
// a window before its battery dies). DeviceReport::SensorData messages
// are only re-reported upward; they do not reach the analyzer.
type deviceReportHandler struct {
	app *app
}

func (h *deviceReportHandler) Name() string { return "device_report" }

func (h *deviceReportHandler) SupportedPayloads() []protocol.PayloadType {
	return []protocol.PayloadType{protocol.PayloadDeviceReport}
}

func (h *deviceReportHandler) HandleMessage(msg protocol.Message) pipeline.Verdict {
	dr, ok := msg.Payload.(protocol.DeviceReport)
	if !ok {
		return pipeline.Complete(nil)
	}
	now := time.Now()

	switch dr.VariantKind {
	case protocol.DeviceReportStatus:
		h.app.analyzer.Observe(dr.ActuatorID, dr.WindowData.TargetPosition, dr.BatteryLevel, now)
		entry := protocol.DeviceStatusEntry{
			Data:      protocol.WindowValue(dr.WindowData),
			Battery:   dr.BatteryLevel,
			UpdatedAt: uint64(now.UnixMilli()),
		}
		h.app.forwardToCloud(h.app.buildEdgeReport(dr.ActuatorID, entry))

		if hint, ok := h.app.analyzer.Hint(dr.ActuatorID, now); ok {
			mac, _ := msg.Header.Source.DeviceMAC()
			cmd := h.app.builder.ActuatorCommand(h.app.cli.EdgeID, mac, dr.ActuatorID, h.app.nextSeq(), protocol.SetWindowPosition(hint))
			return pipeline.Complete(&cmd)
		}
		return pipeline.Complete(nil)

	case protocol.DeviceReportSensor:
		entry := protocol.DeviceStatusEntry{
			Data:      protocol.SensorValue(dr.Sensor),
			UpdatedAt: uint64(now.UnixMilli()),
		}
		h.app.forwardToCloud(h.app.buildEdgeReport(dr.ActuatorID, entry))
		return pipeline.Complete(nil)

	default:
		return pipeline.Complete(nil)
	}
}

// cloudCommandHandler relays CloudCommand::ControlDevices entries down
// to the addressed device's BLE connection, if one is currently
// attached; other CloudCommand kinds are acknowledged but otherwise
// unimplemented at the edge (spec §9 notes ConfigureWindow's Plan is
// deliberately thin at every tier).
type cloudCommandHandler struct {
	app *app
}

func (h *cloudCommandHandler) Name() string { return "cloud_command" }

func (h *cloudCommandHandler) SupportedPayloads() []protocol.PayloadType {
	return []protocol.PayloadType{protocol.PayloadCloudCommand}
}

func (h *cloudCommandHandler) HandleMessage(msg protocol.Message) pipeline.Verdict {
	cc, ok := msg.Payload.(protocol.CloudCommand)
	if !ok {
		return pipeline.Complete(nil)
	}

	switch cc.Kind {
	case protocol.CloudControlDevices:
		for id, actCmd := range cc.Commands {
			ft, ok := h.app.registry.lookup(id)
			if !ok {
				logFacility.Debugln("control command for unattached device", id)
				continue
			}
			mac := protocol.DeviceIDToMAC(id)
			cmd := h.app.builder.ActuatorCommand(h.app.cli.EdgeID, mac, id, h.app.nextSeq(), actCmd)
			if err := ft.SendMessageDefault(cmd); err != nil {
				logFacility.Warnln("relaying actuator command to device:", err)
			}
		}
	default:
		logFacility.Debugln("unhandled cloud command kind", cc.Kind)
	}

	ack := protocol.Message{
		Header:  h.app.newHeader(protocol.NewCloud()),
		Payload: protocol.Acknowledge{OriginalMsgID: msg.Header.ID, Status: protocol.AckOK},
	}
	return pipeline.Complete(&ack)
}

// timeSyncPushHandler applies the cloud's TimeSync replies and periodic
// broadcasts to this edge's own Synchronizer (spec §4.7/§4.8); the edge
// is never authoritative, so it only ever consumes, never answers,
// TimeSync here (requests are issued separately by app.timeSyncLoop).
type timeSyncPushHandler struct {
	app *app
}

func (h *timeSyncPushHandler) Name() string { return "time_sync" }

func (h *timeSyncPushHandler) SupportedPayloads() []protocol.PayloadType {
	return []protocol.PayloadType{protocol.PayloadTimeSync}
}

func (h *timeSyncPushHandler) HandleMessage(msg protocol.Message) pipeline.Verdict {
	ts, ok := msg.Payload.(protocol.TimeSync)
	if !ok {
		return pipeline.Complete(nil)
	}

	switch ts.VariantKind {
	case protocol.TimeSyncResponse:
		h.app.pendingSync.mu.Lock()
		sentAt, match := h.app.pendingSync.sentUptimeMs, h.app.pendingSync.seq == ts.RequestSeq
		h.app.pendingSync.mu.Unlock()
		if match {
			_ = h.app.sync.HandleSyncResponse(sentAt, ts.ServerTime, nowUptimeMs())
		}
	case protocol.TimeSyncBroadcast:
		_ = h.app.sync.HandleSyncResponse(nowUptimeMs(), ts.Timestamp, nowUptimeMs())
	}
	return pipeline.Complete(nil)
}
