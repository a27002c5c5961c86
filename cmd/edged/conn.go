// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"time"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/framedtransport"
	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
)

func nowUptimeMs() uint64 { return uint64(time.Now().UnixMilli()) }

// process runs msg through the shared pipeline and, if nothing
// terminal came out of it, the router -- the same two-layer shape
// cmd/cloudd uses (spec §4.9/§4.10 are separate layers regardless of
// which tier is running them).
func (a *app) process(msg protocol.Message) *protocol.Message {
	pctx := pipeline.NewProcessContext(msg.Header.Source, msg.Header.Target, nil, a.builder)

	out, err := a.engine.Run(msg, pctx)
	if err != nil {
		logFacility.Warnln("pipeline:", err)
		return nil
	}
	if out != nil {
		return out
	}

	resp, err := a.router.Dispatch(msg)
	if err != nil {
		reply := a.builder.ErrorReply(protocol.NewEdge(a.cli.EdgeID), msg.Header.Source, &msg.Header.ID, routerErrorCode(err), err.Error())
		return &reply
	}
	return resp
}

func (a *app) newHeader(target protocol.NodeId) protocol.MessageHeader {
	return protocol.MessageHeader{
		ID:        a.builder.Gen.Generate(),
		Timestamp: a.builder.Clock(),
		Priority:  protocol.PriorityRegular,
		Source:    protocol.NewEdge(a.cli.EdgeID),
		Target:    target,
	}
}

func (a *app) nextSeq() uint32 { return a.seqCounter.Add(1) }

func (a *app) buildEdgeReport(id protocol.DeviceId, entry protocol.DeviceStatusEntry) protocol.Message {
	return protocol.Message{
		Header: a.newHeader(protocol.NewCloud()),
		Payload: protocol.EdgeReport{
			VariantKind: protocol.EdgeReportDeviceStatus,
			Devices:     map[protocol.DeviceId]protocol.DeviceStatusEntry{id: entry},
		},
	}
}

// forwardToCloud sends msg on the current cloud connection, if one is
// attached; the message is dropped if the bridge is mid-reconnect,
// matching spec §5's "best effort" framing for device-status roll-ups.
func (a *app) forwardToCloud(msg protocol.Message) {
	ft := a.cloudConn.Load()
	if ft == nil {
		return
	}
	if err := ft.SendMessageDefault(msg); err != nil {
		logFacility.Warnln("forwarding to cloud:", err)
	}
}

// cloudLoop maintains the edge's single TCP bridge connection up to
// cloudd, reconnecting with a fixed backoff whenever the link drops
// (spec §6: "Edge<->Cloud: TCP to host:port").
func (a *app) cloudLoop(ctx context.Context) {
	for ctx.Err() == nil {
		opts := config.DefaultTCPDialOptions()
		host, port, err := splitHostPort(a.cli.CloudAddr)
		if err != nil {
			logFacility.Criticalln("invalid -cloud-addr:", err)
			return
		}
		opts.Host, opts.Port = host, port

		raw, err := rawtransport.DialTCP(ctx, opts)
		if err != nil {
			logFacility.Warnln("dialing cloud:", err)
			sleepOrDone(ctx, 5*time.Second)
			continue
		}

		// Both ends of the cloud bridge are this repo's own binaries, so
		// they can safely negotiate the compression variant (spec §4.3's
		// reserved bit 2 -- see config.FramedTransportConfig).
		ft := framedtransport.New(raw, config.CompressingFramedTransportConfig(), false)
		a.cloudConn.Store(ft)
		a.serveCloudConn(ctx, raw, ft)
		a.cloudConn.Store(nil)
	}
}

func (a *app) serveCloudConn(ctx context.Context, raw *rawtransport.TCPTransport, ft *framedtransport.FramedTransport) {
	defer raw.Close()
	go func() {
		<-ctx.Done()
		raw.Close()
	}()

	for {
		decoded, err := ft.ReceiveMessage()
		if err != nil {
			if ctx.Err() == nil {
				logFacility.Debugln("cloud connection closed:", err)
			}
			return
		}
		if resp := a.process(decoded.Message); resp != nil {
			if err := ft.SendMessageDefault(*resp); err != nil {
				logFacility.Warnln("replying to cloud:", err)
				return
			}
		}
	}
}

// timeSyncLoop issues a TimeSync::Request whenever the Synchronizer
// says it needs one (spec §4.7 NeedsSync), tracking the single
// outstanding request by sequence number so the matching Response can
// be correlated back to the uptime it was sent at (spec §5).
func (a *app) timeSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := nowUptimeMs()
			if !a.sync.NeedsSync(now) {
				continue
			}
			seq := a.sync.NextRequestSequence()
			a.pendingSync.mu.Lock()
			a.pendingSync.seq = seq
			a.pendingSync.sentUptimeMs = now
			a.pendingSync.mu.Unlock()

			req := protocol.Message{
				Header: a.newHeader(protocol.NewCloud()),
				Payload: protocol.TimeSync{
					VariantKind: protocol.TimeSyncRequest,
					Sequence:    seq,
					SendTime:    &now,
				},
			}
			a.forwardToCloud(req)
		}
	}
}

// deviceBridge dials mac over BLE and pumps DeviceReport/EdgeCommand
// traffic between it and the shared pipeline+router. BLE's transport
// is non-blocking (spec §4.5), so the receive side polls on a short
// ticker rather than blocking a goroutine in ReceiveMessage.
func (a *app) deviceBridge(ctx context.Context, mac [6]byte) {
	id := deviceIDFromMAC(mac)

	link, err := rawtransport.DialBLECentral(a.bleDriver, mac, config.DefaultBLEOptions())
	if err != nil {
		logFacility.Warnln("ble dial:", err)
		return
	}
	defer link.Close()

	ft := framedtransport.New(link, config.DefaultFramedTransportConfig(), true)
	a.registry.register(id, ft)
	defer a.registry.forget(id)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			decoded, err := ft.TryReceiveMessage()
			if err != nil {
				if err == framedtransport.ErrNoCompleteFrame {
					continue
				}
				logFacility.Warnln("ble device", id, "closed:", err)
				return
			}
			if resp := a.process(decoded.Message); resp != nil {
				if err := ft.SendMessageDefault(*resp); err != nil {
					logFacility.Warnln("replying to device", id, ":", err)
				}
			}
		}
	}
}

// beaconAnnounce periodically floods this edge's id over the discovery
// multicast group and logs whatever sibling announcements arrive in the
// meantime (SPEC_FULL.md's edge-to-edge discovery beacon row); the
// fabric's own message protocol never rides this channel, so nothing
// here touches the pipeline or router.
func (a *app) beaconAnnounce(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			_, src, ok := a.beacon.Recv(ctx)
			if !ok {
				return
			}
			logFacility.Debugln("beacon from", src)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.beacon.Send([]byte{a.cli.EdgeID})
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
