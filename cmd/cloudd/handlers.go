// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"

	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/router"
	"github.com/sieluna/blindsfabric/lib/timesynccoord"
)

// routerErrorCode maps a router.Dispatch error to the Error payload code
// spec §7's taxonomy assigns it.
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

// timeSyncHandler routes TimeSync messages to the cloud-side coordinator
// (spec §4.8).
type timeSyncHandler struct {
	coordinator *timesynccoord.Coordinator
}

func (h *timeSyncHandler) Name() string { return "time_sync" }

func (h *timeSyncHandler) SupportedPayloads() []protocol.PayloadType {
	return []protocol.PayloadType{protocol.PayloadTimeSync}
}

func (h *timeSyncHandler) HandleMessage(msg protocol.Message) pipeline.Verdict {
	resp, err := h.coordinator.HandleMessage(msg)
	if err != nil {
		if errors.Is(err, timesynccoord.ErrUnauthorized) {
			return pipeline.Err(err)
		}
		return pipeline.Err(err)
	}
	return pipeline.Complete(resp)
}

// edgeReportHandler accepts EdgeReport messages (device-status and
// health roll-ups) and re-broadcasts them to the app-facing fan-out
// (spec §5's WebSocket broadcast channel) for whatever downstream
// consumer subscribes to Router.AppFanout.
type edgeReportHandler struct {
	router *router.Router
}

func (h *edgeReportHandler) Name() string { return "edge_report" }

func (h *edgeReportHandler) SupportedPayloads() []protocol.PayloadType {
	return []protocol.PayloadType{protocol.PayloadEdgeReport}
}

func (h *edgeReportHandler) HandleMessage(msg protocol.Message) pipeline.Verdict {
	h.router.BroadcastApp(msg)
	return pipeline.Complete(nil)
}
