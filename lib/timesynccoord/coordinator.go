// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package timesynccoord implements the cloud-side time-sync
// coordinator (spec §4.8): a per-peer registry of timesync.Synchronizer
// instances, routing of inbound TimeSync messages to the right peer's
// service, aggregate NetworkStatus reporting, and broadcast to every
// registered peer. Grounded on original_source/lumisync-api's
// time_sync coordinator and, for the concurrent registry, on the
// teacher's cmd/stdiscosrv database.go use of
// github.com/puzpuzpuz/xsync/v3's MapOf for a lock-free, per-key
// registry instead of a sync.Mutex + map.
package timesynccoord

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/timesync"
)

// ErrUnauthorized is returned when a TimeSync::Request arrives from a
// source not present in the coordinator's authorized-edges allow-list
// (spec §4.8, §7 "Unauthorized").
var ErrUnauthorized = errors.New("timesynccoord: source is not an authorized edge")

// NetworkStatus is the cloud-wide aggregate spec §4.8 describes:
// counts of registered peers in each sync state, plus their average
// reported accuracy.
type NetworkStatus struct {
	Total             int
	Synced            int
	Failed            int
	AverageAccuracyMs float64
}

// Coordinator is the cloud-side registry described in spec §4.8. It is
// authoritative at the cloud tier (HasAuthoritativeTime always true);
// Clock supplies the cloud's own uptime/network-time source (the two
// coincide at the cloud since it defines network time).
type Coordinator struct {
	cfg     config.CoordinatorConfig
	syncCfg config.TimeSyncConfig
	clock   func() uint64

	peers *xsync.MapOf[protocol.NodeId, *timesync.Synchronizer]
}

// New returns a Coordinator. clock returns the cloud's current
// monotonic time in milliseconds (network time, since the cloud is
// authoritative).
func New(cfg config.CoordinatorConfig, syncCfg config.TimeSyncConfig, clock func() uint64) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		syncCfg: syncCfg,
		clock:   clock,
		peers:   xsync.NewMapOf[protocol.NodeId, *timesync.Synchronizer](),
	}
}

// HasAuthoritativeTime is always true at the cloud tier (spec §4.8).
func (c *Coordinator) HasAuthoritativeTime() bool { return true }

// Register adds peer to the registry if not already present (spec §3:
// "Registered devices are added on first sync request ... nothing
// auto-expires them") and returns its Synchronizer.
func (c *Coordinator) Register(peer protocol.NodeId) *timesync.Synchronizer {
	s, _ := c.peers.LoadOrCompute(peer, func() *timesync.Synchronizer {
		return timesync.New(c.syncCfg)
	})
	return s
}

// Remove explicitly unregisters peer on disconnect (spec §3: nothing
// auto-expires registered devices, so removal must be explicit).
func (c *Coordinator) Remove(peer protocol.NodeId) {
	c.peers.Delete(peer)
}

// Peer returns the registered Synchronizer for peer, if any.
func (c *Coordinator) Peer(peer protocol.NodeId) (*timesync.Synchronizer, bool) {
	return c.peers.Load(peer)
}

func (c *Coordinator) isAuthorized(source protocol.NodeId) bool {
	edgeID, ok := source.EdgeID()
	if !ok {
		return false
	}
	for _, id := range c.cfg.AuthorizedEdges {
		if id == edgeID {
			return true
		}
	}
	return false
}

// HandleMessage routes an inbound TimeSync message to its source peer's
// Synchronizer and returns the reply Message to send back, or nil if no
// reply is warranted (spec §4.8):
//
//	Request        -> Response (authorization-gated)
//	Response       -> updates the coordinator's record of that peer, no reply
//	StatusQuery    -> StatusResponse
//	StatusResponse -> updates the coordinator's record of that peer, no reply
//	Broadcast      -> not a valid direction into the coordinator; ignored
func (c *Coordinator) HandleMessage(msg protocol.Message) (*protocol.Message, error) {
	ts, ok := msg.Payload.(protocol.TimeSync)
	if !ok {
		return nil, fmt.Errorf("timesynccoord: not a TimeSync payload: %T", msg.Payload)
	}

	switch ts.VariantKind {
	case protocol.TimeSyncRequest:
		if !c.isAuthorized(msg.Header.Source) {
			return nil, ErrUnauthorized
		}
		sync := c.Register(msg.Header.Source)
		now := c.clock()
		// The coordinator is network time's source of truth, so
		// serving a request is itself a perfectly accurate sample:
		// feed the synchronizer a zero-rtt, zero-offset response so
		// its own bookkeeping (status, history) reflects "this peer
		// was just served" for NetworkStatus aggregation.
		_ = sync.HandleSyncResponse(now, now, now)
		resp := protocol.Message{
			Header: protocol.MessageHeader{
				Source: protocol.NewCloud(),
				Target: msg.Header.Source,
			},
			Payload: protocol.TimeSync{
				VariantKind:      protocol.TimeSyncResponse,
				RequestSeq:       ts.Sequence,
				RequestRecvTime:  now,
				ResponseSendTime: now,
				ServerTime:       now,
				OffsetMs:         0,
				AccuracyMs:       0,
			},
		}
		return &resp, nil

	case protocol.TimeSyncResponse:
		sync := c.Register(msg.Header.Source)
		_ = sync.HandleSyncResponse(ts.RequestRecvTime, ts.ServerTime, c.clock())
		return nil, nil

	case protocol.TimeSyncStatusQuery:
		sync := c.Register(msg.Header.Source)
		st := sync.Status()
		resp := protocol.Message{
			Header: protocol.MessageHeader{
				Source: protocol.NewCloud(),
				Target: msg.Header.Source,
			},
			Payload: protocol.TimeSync{
				VariantKind: protocol.TimeSyncStatusResponse,
				State:       syncStatusToWire(st.Kind),
				OffsetMs:    sync.CurrentOffsetMs(),
				AccuracyMs:  sync.LastAccuracyMs(),
			},
		}
		return &resp, nil

	case protocol.TimeSyncStatusResponse:
		sync := c.Register(msg.Header.Source)
		if ts.State == protocol.SyncStateSynced {
			_ = sync.HandleSyncResponse(c.clock(), c.clock(), c.clock())
		} else {
			sync.HandleFailure(c.clock())
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func syncStatusToWire(k timesync.StatusKind) protocol.SyncStateWire {
	switch k {
	case timesync.StatusSynced:
		return protocol.SyncStateSynced
	case timesync.StatusFailed:
		return protocol.SyncStateFailed
	default:
		return protocol.SyncStateUnsynced
	}
}

// NetworkStatus computes the cloud-wide aggregate across all registered
// peers (spec §4.8).
func (c *Coordinator) NetworkStatus() NetworkStatus {
	var ns NetworkStatus
	var accuracySum float64
	c.peers.Range(func(_ protocol.NodeId, s *timesync.Synchronizer) bool {
		ns.Total++
		switch s.Status().Kind {
		case timesync.StatusSynced:
			ns.Synced++
		case timesync.StatusFailed:
			ns.Failed++
		}
		accuracySum += float64(s.LastAccuracyMs())
		return true
	})
	if ns.Total > 0 {
		ns.AverageAccuracyMs = accuracySum / float64(ns.Total)
	}
	return ns
}

// Broadcast builds a TimeSync::Broadcast message addressed to every
// registered peer, forwarding the cloud's authoritative time downward
// (spec §4.8). Edge services are expected to re-broadcast the same way
// to their attached devices every device_broadcast_interval_ms.
func (c *Coordinator) Broadcast() []protocol.Message {
	now := c.clock()
	var out []protocol.Message
	c.peers.Range(func(peer protocol.NodeId, _ *timesync.Synchronizer) bool {
		out = append(out, protocol.Message{
			Header: protocol.MessageHeader{Source: protocol.NewCloud(), Target: peer},
			Payload: protocol.TimeSync{
				VariantKind: protocol.TimeSyncBroadcast,
				Timestamp:   now,
				OffsetMs:    0,
				AccuracyMs:  0,
			},
		})
		return true
	})
	return out
}

// DeviceBroadcastInterval returns the configured interval edge services
// should use when forwarding cloud's authoritative time downward to
// their devices (spec §4.8).
func (c *Coordinator) DeviceBroadcastInterval() uint64 {
	return c.cfg.DeviceBroadcastIntervalMs
}
