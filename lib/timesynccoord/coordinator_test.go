// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package timesynccoord

import (
	"testing"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

func newTestCoordinator(now *uint64) *Coordinator {
	cfg := config.DefaultCoordinatorConfig()
	cfg.AuthorizedEdges = []uint8{1}
	return New(cfg, config.DefaultTimeSyncConfig(), func() uint64 { return *now })
}

func TestRequestFromAuthorizedEdgeGetsResponse(t *testing.T) {
	now := uint64(5000)
	c := newTestCoordinator(&now)

	req := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
		Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncRequest, Sequence: 42, PrecisionMs: 10},
	}
	resp, err := c.HandleMessage(req)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response message")
	}
	ts, ok := resp.Payload.(protocol.TimeSync)
	if !ok || ts.VariantKind != protocol.TimeSyncResponse {
		t.Fatalf("unexpected response payload: %#v", resp.Payload)
	}
	if ts.RequestSeq != 42 {
		t.Fatalf("request_seq = %d, want 42", ts.RequestSeq)
	}
	if !resp.Header.Target.Equal(protocol.NewEdge(1)) {
		t.Fatalf("response target = %v, want edge(1)", resp.Header.Target)
	}
}

func TestRequestFromUnauthorizedEdgeRejected(t *testing.T) {
	now := uint64(1000)
	c := newTestCoordinator(&now)

	req := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(99), Target: protocol.NewCloud()},
		Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncRequest, Sequence: 1},
	}
	_, err := c.HandleMessage(req)
	if err != ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestStatusQueryReturnsCurrentState(t *testing.T) {
	now := uint64(1000)
	c := newTestCoordinator(&now)

	// First a successful request establishes Synced.
	req := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
		Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncRequest, Sequence: 1},
	}
	if _, err := c.HandleMessage(req); err != nil {
		t.Fatal(err)
	}

	query := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
		Payload: protocol.TimeSync{VariantKind: protocol.TimeSyncStatusQuery},
	}
	resp, err := c.HandleMessage(query)
	if err != nil {
		t.Fatal(err)
	}
	ts := resp.Payload.(protocol.TimeSync)
	if ts.VariantKind != protocol.TimeSyncStatusResponse {
		t.Fatalf("variant = %v, want StatusResponse", ts.VariantKind)
	}
	if ts.State != protocol.SyncStateSynced {
		t.Fatalf("state = %v, want Synced", ts.State)
	}
}

func TestNetworkStatusAggregatesPeers(t *testing.T) {
	now := uint64(1000)
	c := newTestCoordinator(&now)

	c.Register(protocol.NewEdge(1))
	c.Register(protocol.NewEdge(2))

	sync1, _ := c.Peer(protocol.NewEdge(1))
	if err := sync1.HandleSyncResponse(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	sync2, _ := c.Peer(protocol.NewEdge(2))
	for i := 0; i < config.DefaultTimeSyncConfig().MaxRetryCount; i++ {
		sync2.HandleFailure(uint64(i))
	}

	ns := c.NetworkStatus()
	if ns.Total != 2 {
		t.Fatalf("total = %d, want 2", ns.Total)
	}
	if ns.Synced != 1 {
		t.Fatalf("synced = %d, want 1", ns.Synced)
	}
	if ns.Failed != 1 {
		t.Fatalf("failed = %d, want 1", ns.Failed)
	}
}

func TestBroadcastTargetsAllRegisteredPeers(t *testing.T) {
	now := uint64(2000)
	c := newTestCoordinator(&now)
	c.Register(protocol.NewEdge(1))
	c.Register(protocol.NewEdge(2))

	msgs := c.Broadcast()
	if len(msgs) != 2 {
		t.Fatalf("broadcast count = %d, want 2", len(msgs))
	}
	for _, m := range msgs {
		ts := m.Payload.(protocol.TimeSync)
		if ts.VariantKind != protocol.TimeSyncBroadcast {
			t.Fatalf("unexpected broadcast payload variant %v", ts.VariantKind)
		}
		if ts.Timestamp != now {
			t.Fatalf("timestamp = %d, want %d", ts.Timestamp, now)
		}
	}
}

func TestRemoveUnregistersPeer(t *testing.T) {
	now := uint64(1000)
	c := newTestCoordinator(&now)
	c.Register(protocol.NewEdge(1))
	c.Remove(protocol.NewEdge(1))
	if _, ok := c.Peer(protocol.NewEdge(1)); ok {
		t.Fatal("peer should have been removed")
	}
}
