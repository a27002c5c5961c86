// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/framedtransport"
	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
)

// serveEdgeConn runs one edge connection's receive loop: every inbound
// Message passes through the cross-cutting pipeline first (validation,
// authentication, logging, error recovery) and, only if that completes
// clean, on to the router for business dispatch (spec §4.9/§4.10 are
// deliberately separate layers).
func (a *app) serveEdgeConn(ctx context.Context, raw *rawtransport.TCPTransport) {
	defer raw.Close()
	// cloudd and edged are both this repo's own binaries, so the TCP
	// bridge between them can safely negotiate the compression variant
	// (spec §4.3's reserved bit 2 -- see config.FramedTransportConfig).
	ft := framedtransport.New(raw, config.CompressingFramedTransportConfig(), false)

	go func() {
		<-ctx.Done()
		raw.Close()
	}()

	for {
		decoded, err := ft.ReceiveMessage()
		if err != nil {
			if ctx.Err() == nil {
				logFacility.Debugln("edge connection closed:", err)
			}
			return
		}

		if resp := a.process(decoded.Message); resp != nil {
			if err := ft.SendMessageDefault(*resp); err != nil {
				logFacility.Warnln("sending reply:", err)
				return
			}
		}
	}
}

// process runs msg through the pipeline then the router, returning the
// single reply to send back (if any).
func (a *app) process(msg protocol.Message) *protocol.Message {
	pctx := pipeline.NewProcessContext(msg.Header.Source, msg.Header.Target, nil, a.builder)

	out, err := a.engine.Run(msg, pctx)
	if err != nil {
		logFacility.Warnln("pipeline:", err)
		return nil
	}
	if out != nil {
		// A standard stage (validation/authentication/error-handling)
		// already produced the terminal reply.
		return out
	}

	resp, err := a.router.Dispatch(msg)
	if err != nil {
		reply := a.builder.ErrorReply(protocol.NewCloud(), msg.Header.Source, &msg.Header.ID, routerErrorCode(err), err.Error())
		return &reply
	}
	return resp
}
